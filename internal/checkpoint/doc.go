// Package checkpoint хранит сериализованное состояние экземпляров flow.
//
// Store отвечает только за байты: файл на экземпляр (FileStore) или ключ
// в Redis (RedisStore). Формат задаёт Codec: JSON по умолчанию или msgpack
// со сжатием zstd. DetectCodec определяет формат по содержимому, поэтому
// состояние читается независимо от текущей настройки.
package checkpoint
