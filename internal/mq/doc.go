// Package mq публикует события жизненного цикла flow в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ и переподключение
//   - topology.go   — объявление topic exchange и очередей наблюдателей
//   - publisher.go  — публикация событий
//   - consumer.go   — чтение событий (команда events tail)
//
// Типы событий (routing key совпадает с типом):
//   - flow.started    — запуск открыт
//   - step.completed  — шаг выполнен
//   - step.failed     — шаг завершился ошибкой
//   - flow.declined   — шаг отклонён на согласовании
//   - flow.ended      — запуск завершён
package mq
