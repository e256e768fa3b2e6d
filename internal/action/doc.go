// Package action описывает реестр действий, которые вызывают шаги flow.
//
// Действие адресуется ссылкой module → class → function и разрешается
// в Invokable с интроспектируемой сигнатурой.
//
// Реализации реестра:
//   - FuncRegistry   — таблица функций и классов внутри процесса
//   - ScriptRegistry — модули на Go, загружаемые в рантайме интерпретатором yaegi
//   - ExecRegistry   — внешний процесс, протокол JSON через stdin/stdout
//   - Chain          — последовательный опрос нескольких реестров
package action
