// Package cli реализует инструмент командной строки bpmnflow.
//
// # Обзор
//
// CLI загружает диаграмму draw.io, строит граф и выполняет его движком
// в одном из двух режимов:
//   - run — однократный запуск без сохранения состояния
//   - start/resume — именованный экземпляр с checkpoint после каждого шага
//     и согласованием шагов оператором
//
// # Ключевые компоненты
//
// ## App
//
// Ресурсы одного вызова: конфигурация, логгер, реестр действий, журнал
// запусков, хранилище состояний, издатель событий, метрики. Открываются
// лениво, закрываются через Close.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// В режиме JSON журнал шагов тоже уходит в stderr:
// bpmnflow diagram inspect flow.drawio --json | jq .
//
// ## Commands
//
//   - run, start, resume — выполнение flow
//   - diagram: decode, encode, inspect
//   - log: cleanup, runs, steps
//   - events: tail
//
// Каждая группа создаётся фабричной функцией (NewRunCmd и т.д.),
// принимающей appFn и outputFn — замыкания для ленивого создания
// App и Output после парсинга PersistentFlags.
//
// # Коды завершения
//
// ExitCode: 0 — flow завершён или остановлен оператором, 1 — ошибка
// диаграммы, графа, состояния или шага, 2 — неверные аргументы.
package cli
