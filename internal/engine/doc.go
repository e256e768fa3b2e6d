// Package engine содержит движок выполнения flow.
//
// Включает:
//   - engine.go   — Engine, Run/Resume, конечный автомат шагов
//   - step.go     — вызов действия шага и привязка результата
//   - next.go     — выбор следующего шага: шлюзы и циклы
//   - builtins.go — встроенные действия движка (loop_items_check, evaluate, ...)
//   - template.go — рендеринг Go templates над переменными экземпляра
//   - state.go    — версионированное состояние экземпляра и его сохранение
//
// Движок однопоточный: один State принадлежит одному запуску.
package engine
