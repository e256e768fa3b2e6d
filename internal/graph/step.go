package graph

import "strings"

// Kind — тип узла графа.
type Kind string

const (
	KindShape            Kind = "shape"
	KindExclusiveGateway Kind = "exclusive_gateway"
	KindParallelGateway  Kind = "parallel_gateway"
	KindEndEvent         Kind = "end_event"
)

// IsGateway сообщает, является ли тип шлюзом.
func (k Kind) IsGateway() bool {
	return k == KindExclusiveGateway || k == KindParallelGateway
}

// ActionRef — ссылка на действие в реестре.
type ActionRef struct {
	Module   string `json:"module,omitempty"`
	Class    string `json:"class,omitempty"`
	Function string `json:"function,omitempty"`
}

// String возвращает ссылку в виде module.class.function.
func (r ActionRef) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Module, r.Class, r.Function} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

// Attribute — именованное строковое значение шага.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Step — шаг flow.
type Step struct {
	ID               string      `json:"id"`
	Name             string      `json:"name,omitempty"`
	Kind             Kind        `json:"kind"`
	IsStart          bool        `json:"is_start,omitempty"`
	Disabled         bool        `json:"disabled,omitempty"`
	Action           *ActionRef  `json:"action,omitempty"`
	OutputVariable   string      `json:"output_variable,omitempty"`
	Attributes       []Attribute `json:"attributes,omitempty"`
	LoopCounterStart *int        `json:"loop_counter_start,omitempty"`
}

// Attr возвращает значение атрибута без учёта регистра имени.
func (s *Step) Attr(name string) (string, bool) {
	for _, a := range s.Attributes {
		if strings.EqualFold(a.Name, name) {
			return a.Value, true
		}
	}
	return "", false
}

// IsLoop сообщает, владеет ли шаг циклом.
func (s *Step) IsLoop() bool {
	return s.LoopCounterStart != nil
}

// DisplayName возвращает имя шага или ID, если имя пустое.
func (s *Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// Connector — ребро графа.
type Connector struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Value  string `json:"value,omitempty"`
}
