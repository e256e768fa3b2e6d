// Package runlog — журнал запусков flow: таблицы Flows, Runs и Steps.
//
// SQLiteSink — локальная база по умолчанию, PostgresSink — общая база
// для нескольких машин. NopSink отключает журнал, MemorySink хранит
// записи в памяти.
package runlog
