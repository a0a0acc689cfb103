package syncengine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/slog"

	"bistrosync/internal/app/client/store"
	domain "bistrosync/internal/domain/sync"
)

// metadataFields служебные поля, которые не попадают в локальную запись
var metadataFields = []string{
	"id",
	"localId",
	"version",
	"isDirty",
	"isDeleted",
	"syncedAt",
	"lastModifiedAt",
	"deletedAt",
	"tenantId",
	sourceLocalIDField,
}

// sourceLocalIDField хранит localId удаленной записи без cloudId, созданной при применении
const sourceLocalIDField = "sourceLocalId"

// Applier применяет удаленные изменения к локальным хранилищам.
// Повторное применение той же страницы не создает дублей.
type Applier struct {
	stores StoreProvider
	log    *slog.Logger
}

// NewApplier создает применитель изменений
func NewApplier(stores StoreProvider, log *slog.Logger) *Applier {
	return &Applier{
		stores: stores,
		log:    log.With(slog.String("component", "applier")),
	}
}

// ApplyChanges применяет changesets по порядку и возвращает число записей в хранилища
func (a *Applier) ApplyChanges(ctx context.Context, changes []domain.Changeset) (int, error) {
	writes := 0
	for _, ch := range changes {
		s, err := a.stores.Store(ch.Entity)
		if err != nil {
			a.log.Warn("Изменение для неизвестной сущности пропущено", "entity", ch.Entity, "error", err)
			continue
		}

		var n int
		if domain.UsesNaturalKey(ch.Entity) {
			n, err = a.applyByNaturalKey(ctx, s, ch)
		} else {
			n, err = a.applyByID(ctx, s, ch)
		}
		if err != nil {
			return writes, fmt.Errorf("apply %s %s: %w", ch.Entity, ch.LocalID, err)
		}
		writes += n
	}
	return writes, nil
}

func (a *Applier) applyByNaturalKey(ctx context.Context, s store.RecordStore, ch domain.Changeset) (int, error) {
	if ch.Operation == domain.OpDelete {
		a.log.Debug("Удаление связки приходит отдельным списком, changeset пропущен", "entity", ch.Entity)
		return 0, nil
	}

	key, ok := domain.NaturalKey(ch.Data)
	if !ok {
		a.log.Warn("Связка без натурального ключа пропущена", "entity", ch.Entity, "local_id", ch.LocalID)
		return 0, nil
	}

	existing, err := s.FindAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, rec := range existing {
		if k, ok := domain.RecordKey(ch.Entity, rec); ok && k == key {
			return 0, nil
		}
	}

	rec := domain.Record{}
	for _, field := range domain.NaturalKeyFields {
		rec[field] = ch.Data[field]
	}
	if cloudID := changeCloudID(ch); cloudID != "" {
		rec["cloudId"] = cloudID
	}

	if _, err := s.Create(ctx, rec); err != nil {
		return 0, err
	}
	return 1, nil
}

func (a *Applier) applyByID(ctx context.Context, s store.RecordStore, ch domain.Changeset) (int, error) {
	if ch.Operation == domain.OpDelete {
		a.log.Debug("Удаление записи приходит отдельным списком, changeset пропущен", "entity", ch.Entity)
		return 0, nil
	}

	payload := stripMetadata(ch.Data)
	if cloudID := changeCloudID(ch); cloudID != "" {
		payload["cloudId"] = cloudID
	}

	id, err := a.resolveTarget(ctx, s, ch)
	if err != nil {
		return 0, err
	}

	if id != "" {
		updater, ok := s.(store.Updater)
		if !ok {
			a.log.Debug("Хранилище не поддерживает обновление, changeset пропущен", "entity", ch.Entity)
			return 0, nil
		}
		if _, err := updater.Update(ctx, id, payload); err != nil {
			return 0, err
		}
		return 1, nil
	}

	if id := changeLocalID(ch); id != "" && changeCloudID(ch) == "" {
		payload[sourceLocalIDField] = id
	}
	if _, err := s.Create(ctx, payload); err != nil {
		return 0, err
	}
	return 1, nil
}

func changeLocalID(ch domain.Changeset) string {
	if ch.LocalID != "" {
		return string(ch.LocalID)
	}
	id, _ := domain.FormatScalar(ch.Data["id"])
	return id
}

// resolveTarget ищет существующую запись: сначала по локальному id, затем по cloudId.
// Запись без cloudId находится по sourceLocalId, проставленному при ее создании.
// Пустая строка означает, что запись нужно создать.
func (a *Applier) resolveTarget(ctx context.Context, s store.RecordStore, ch domain.Changeset) (string, error) {
	id := changeLocalID(ch)
	cloudID := changeCloudID(ch)
	needScan := cloudID != "" || id != ""

	if id != "" {
		if finder, ok := s.(store.Finder); ok {
			rec, err := finder.FindByID(ctx, id)
			switch {
			case err == nil:
				if rec.CloudID() == "" || cloudID == "" || rec.CloudID() == cloudID {
					return id, nil
				}
			case !errors.Is(err, store.ErrNotFound):
				return "", err
			}
		} else {
			needScan = true
		}
	}

	if !needScan {
		return "", nil
	}

	records, err := s.FindAll(ctx)
	if err != nil {
		return "", err
	}

	byID, bySource := "", ""
	for _, rec := range records {
		recID, _ := rec.ID()
		if cloudID != "" && rec.CloudID() == cloudID {
			return recID, nil
		}
		if id == "" {
			continue
		}
		if recID == id && (rec.CloudID() == "" || cloudID == "") {
			byID = recID
		}
		if cloudID == "" && bySource == "" {
			if src, ok := domain.FormatScalar(rec[sourceLocalIDField]); ok && src == id {
				bySource = recID
			}
		}
	}
	if byID != "" {
		return byID, nil
	}
	return bySource, nil
}

// ApplyDeletions удаляет записи с совпадающим cloudId. Отсутствующие записи пропускаются.
func (a *Applier) ApplyDeletions(ctx context.Context, deletions []domain.Deletion) (int, error) {
	removed := 0
	for _, del := range deletions {
		if del.CloudID == "" {
			continue
		}

		s, err := a.stores.Store(del.Entity)
		if err != nil {
			a.log.Warn("Удаление для неизвестной сущности пропущено", "entity", del.Entity, "error", err)
			continue
		}

		records, err := s.FindAll(ctx)
		if err != nil {
			return removed, fmt.Errorf("delete %s %s: %w", del.Entity, del.CloudID, err)
		}

		for _, rec := range records {
			if rec.CloudID() != del.CloudID {
				continue
			}

			ok, err := a.deleteRecord(ctx, s, del.Entity, rec)
			if err != nil {
				return removed, fmt.Errorf("delete %s %s: %w", del.Entity, del.CloudID, err)
			}
			if ok {
				removed++
			}
		}
	}
	return removed, nil
}

func (a *Applier) deleteRecord(ctx context.Context, s store.RecordStore, entity domain.Entity, rec domain.Record) (bool, error) {
	if domain.UsesNaturalKey(entity) {
		key, ok := domain.NaturalKey(rec)
		deleter, can := s.(store.KeyDeleter)
		if !ok || !can {
			a.log.Debug("Связку нельзя удалить по ключу", "entity", entity)
			return false, nil
		}
		return true, ignoreNotFound(deleter.DeleteByKey(ctx, key))
	}

	id, ok := rec.ID()
	deleter, can := s.(store.Deleter)
	if !ok || !can {
		a.log.Debug("Запись нельзя удалить по id", "entity", entity)
		return false, nil
	}
	return true, ignoreNotFound(deleter.Delete(ctx, id))
}

func stripMetadata(data domain.Record) domain.Record {
	out := data.Clone()
	for _, field := range metadataFields {
		delete(out, field)
	}
	return out
}

func changeCloudID(ch domain.Changeset) string {
	if ch.CloudID != "" {
		return ch.CloudID
	}
	return ch.Data.CloudID()
}

func ignoreNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}
