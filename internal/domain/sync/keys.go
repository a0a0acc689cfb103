package sync

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// KeyFunc вычисляет ключ записи внутри сущности
type KeyFunc func(Record) (string, bool)

// keyFuncs таблица стратегий: по умолчанию суррогатный id,
// для связки заказ-позиция-добавка составной натуральный ключ
var keyFuncs = map[Entity]KeyFunc{
	EntityOrderItemExtra: NaturalKey,
}

// UsesNaturalKey сообщает, идентифицируется ли сущность натуральным ключом
func UsesNaturalKey(e Entity) bool {
	_, ok := keyFuncs[e]
	return ok
}

// RecordKey возвращает ключ записи. false означает, что запись нельзя отслеживать.
func RecordKey(e Entity, r Record) (string, bool) {
	if fn, ok := keyFuncs[e]; ok {
		return fn(r)
	}
	return r.ID()
}

// NaturalKey собирает ключ orderId:orderItemId:extraId
func NaturalKey(r Record) (string, bool) {
	parts := make([]string, 0, 3)
	for _, field := range NaturalKeyFields {
		v, ok := FormatScalar(r[field])
		if !ok {
			return "", false
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, ":"), true
}

// NaturalKeyFields поля составного ключа в порядке сборки
var NaturalKeyFields = []string{"orderId", "orderItemId", "extraId"}

// FormatScalar приводит числовое или строковое значение к строке.
// Пустые строки, дробные числа и прочие типы не считаются ключом.
func FormatScalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		f, err := t.Float64()
		if err != nil {
			return "", false
		}
		return FormatScalar(f)
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return "", false
		}
		return strconv.FormatInt(int64(t), 10), true
	case float32:
		return FormatScalar(float64(t))
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	}
	return "", false
}

// Canonical возвращает стабильную сериализацию записи.
// encoding/json сортирует ключи map, поэтому одинаковые записи дают одинаковую строку.
func Canonical(r Record) (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// TimestampLayout ISO-8601 с миллисекундами в UTC
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp форматирует время для протокола
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
