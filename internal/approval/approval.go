// Package approval — согласование шагов оператором и снимок графа
// при остановке экземпляра.
package approval

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shaiso/bpmnflow/internal/graph"
)

// ErrNoAnswer — ввод закончился до ответа оператора.
var ErrNoAnswer = errors.New("no answer from operator")

// Approver решает, выполнять ли следующий шаг.
type Approver interface {
	Approve(ctx context.Context, flow string, step *graph.Step) (bool, error)
}

// ApproverFunc адаптирует функцию к Approver.
type ApproverFunc func(ctx context.Context, flow string, step *graph.Step) (bool, error)

// Approve реализует Approver.
func (f ApproverFunc) Approve(ctx context.Context, flow string, step *graph.Step) (bool, error) {
	return f(ctx, flow, step)
}

// Always одобряет каждый шаг.
var Always Approver = ApproverFunc(func(context.Context, string, *graph.Step) (bool, error) {
	return true, nil
})

// Console спрашивает оператора в терминале.
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

// NewConsole создаёт Console поверх ввода и вывода.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// Approve реализует Approver. Пустой ответ считается согласием.
func (c *Console) Approve(ctx context.Context, flow string, step *graph.Step) (bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "[%s] Execute step '%s'? [Y/n]: ", flow, step.DisplayName())

		line, err := c.in.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		if err != nil && answer == "" {
			if errors.Is(err, io.EOF) {
				return false, ErrNoAnswer
			}
			return false, fmt.Errorf("read answer: %w", err)
		}

		switch answer {
		case "", "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(c.out, "Please answer 'y' or 'n'.")
	}
}
