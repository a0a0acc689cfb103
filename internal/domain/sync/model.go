package sync

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Entity имя синхронизируемой сущности
type Entity string

const (
	EntityAccount           Entity = "account"
	EntityUser              Entity = "user"
	EntityCodeTable         Entity = "code_table"
	EntityCodeTranslation   Entity = "code_translation"
	EntityCategory          Entity = "category"
	EntityExtra             Entity = "extra"
	EntityIngredient        Entity = "ingredient"
	EntityTable             Entity = "table"
	EntityProduct           Entity = "product"
	EntityVariant           Entity = "variant"
	EntityProductExtra      Entity = "product_extra"
	EntityProductIngredient Entity = "product_ingredient"
	EntityOrder             Entity = "order"
	EntityOrderItem         Entity = "order_item"
	EntityOrderItemExtra    Entity = "order_item_extra"
)

// Entities фиксированный порядок обхода сущностей: справочники раньше заказов
var Entities = []Entity{
	EntityAccount,
	EntityUser,
	EntityCodeTable,
	EntityCodeTranslation,
	EntityCategory,
	EntityExtra,
	EntityIngredient,
	EntityTable,
	EntityProduct,
	EntityVariant,
	EntityProductExtra,
	EntityProductIngredient,
	EntityOrder,
	EntityOrderItem,
	EntityOrderItemExtra,
}

// Valid проверяет, что сущность входит в известный набор
func (e Entity) Valid() bool {
	for _, known := range Entities {
		if e == known {
			return true
		}
	}
	return false
}

// JoinEntities собирает список сущностей для query-параметра pull
func JoinEntities(entities []Entity) string {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, string(e))
	}
	return strings.Join(names, ",")
}

// ParseEntities разбирает список сущностей из query-параметра, пропуская пустые элементы
func ParseEntities(raw string) []Entity {
	var out []Entity
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, Entity(part))
	}
	return out
}

// Operation тип изменения
type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Strategy стратегия разрешения конфликта
type Strategy string

const (
	StrategyServerWins    Strategy = "SERVER_WINS"
	StrategyClientWins    Strategy = "CLIENT_WINS"
	StrategyLastWriteWins Strategy = "LAST_WRITE_WINS"
	StrategyManual        Strategy = "MANUAL"
	StrategyMerge         Strategy = "MERGE"
)

// Valid проверяет, что стратегия известна
func (s Strategy) Valid() bool {
	switch s {
	case StrategyServerWins, StrategyClientWins, StrategyLastWriteWins, StrategyManual, StrategyMerge:
		return true
	}
	return false
}

// RequiresPayload сообщает, нужна ли для стратегии объединенная запись
func (s Strategy) RequiresPayload() bool {
	return s == StrategyMerge || s == StrategyManual
}

// Mode режим работы клиента
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeCloud  Mode = "cloud"
	ModeHybrid Mode = "hybrid"
)

// Record локальная запись произвольной сущности
type Record map[string]any

// Clone возвращает поверхностную копию записи
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID возвращает суррогатный идентификатор записи в строковом виде
func (r Record) ID() (string, bool) {
	return FormatScalar(r["id"])
}

// CloudID возвращает серверный идентификатор, если он строковый
func (r Record) CloudID() string {
	s, _ := r["cloudId"].(string)
	return s
}

// Snapshot сериализованные записи по сущностям и ключам на момент последнего сбора
type Snapshot map[Entity]map[string]string

// Count возвращает общее число записей в снимке
func (s Snapshot) Count() int {
	n := 0
	for _, records := range s {
		n += len(records)
	}
	return n
}

// LocalID локальный идентификатор записи в changeset.
// Числовые значения сериализуются числом, остальные строкой.
type LocalID string

func (id LocalID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id *LocalID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = LocalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	s, _ := FormatScalar(n)
	*id = LocalID(s)
	return nil
}

// Changeset одно изменение записи в обмене с сервером
type Changeset struct {
	Entity    Entity    `json:"entity"`
	Operation Operation `json:"operation"`
	LocalID   LocalID   `json:"localId"`
	CloudID   string    `json:"cloudId,omitempty"`
	Data      Record    `json:"data"`
	Version   int64     `json:"version"`
	Timestamp string    `json:"timestamp"`
}

// Deletion удаление записи на сервере
type Deletion struct {
	Entity    Entity `json:"entity"`
	CloudID   string `json:"cloudId"`
	DeletedAt string `json:"deletedAt"`
}

// Conflict конфликт, обнаруженный сервером
type Conflict struct {
	ID              string   `json:"id"`
	Entity          Entity   `json:"entity"`
	CloudID         string   `json:"cloudId"`
	LocalID         LocalID  `json:"localId,omitempty"`
	Strategy        Strategy `json:"strategy"`
	ServerVersion   int64    `json:"serverVersion"`
	ClientVersion   int64    `json:"clientVersion"`
	ServerData      Record   `json:"serverData"`
	ClientData      Record   `json:"clientData"`
	ServerTimestamp string   `json:"serverTimestamp,omitempty"`
	ClientTimestamp string   `json:"clientTimestamp,omitempty"`
	Resolved        bool     `json:"resolved"`
}
