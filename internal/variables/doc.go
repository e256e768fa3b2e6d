// Package variables — таблица символов flow и разрешение аргументов шагов.
//
// Переменные адресуются токенами вида %name%. Поддерживаются:
//   - %x%          — значение целиком
//   - %x.field%    — поле (любая глубина), в том числе путь внутри JSON-строки
//   - %x[2]%       — индекс (цепочки допускаются)
//   - %x.counter%  — текущий индекс активного цикла по x
//   - %x.object%   — сам курсор цикла
//
// Системные переменные (%__today__%, %__user_name__% и т.д.) вычисляются
// лениво, при первом упоминании в атрибутах шага.
package variables
