// bpmnflow — исполнитель BPMN flows, нарисованных в draw.io.
//
// Использование:
//
//	bpmnflow [--config FILE] [--json] [--metrics-addr ADDR] <command> [args]
//
// Команды:
//
//	run       Однократный запуск flow
//	start     Запуск именованного экземпляра с checkpoint
//	resume    Продолжение сохранённого экземпляра
//	diagram   Работа с файлами диаграмм
//	log       Журнал запусков
//	events    События flow из RabbitMQ
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/bpmnflow/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	root := cli.NewRootCmd(version, cli.Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
	err := root.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.ExitCode(err))
}
