package notify

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys double as the English text.
const (
	keyInserted        = "Record added: %s"
	keyUpdated         = "Record updated: %s"
	keyDeleted         = "Record deleted: %s"
	keyFetchFailed     = "Could not load %s"
	keySubscribeFailed = "Could not open live updates for %s"
	keyResync          = "Live updates for %s were interrupted; reloading"
	keyInsertFailed    = "Could not add the record to %s"
	keyUpdateFailed    = "Could not update the record in %s"
	keyDeleteFailed    = "Could not delete the record from %s"
	keyDeletePartial   = "The record in %s was kept because %d related steps failed"
	keyNotFound        = "The record does not exist in %s"
	keyReadOnly        = "%s cannot be modified"
	keyInvalid         = "The data sent is not valid: %s"
	keyForbidden       = "You do not have permission to perform this action"
	keySessionRequired = "Your session has expired; please sign in again"
	keyInternal        = "An unexpected error occurred"
)

var spanish = map[string]string{
	keyInserted:        "Registro agregado: %s",
	keyUpdated:         "Registro actualizado: %s",
	keyDeleted:         "Registro eliminado: %s",
	keyFetchFailed:     "No se pudieron cargar los datos de %s",
	keySubscribeFailed: "No se pudo abrir la actualización en tiempo real de %s",
	keyResync:          "Se interrumpió la actualización en tiempo real de %s; recargando",
	keyInsertFailed:    "No se pudo agregar el registro en %s",
	keyUpdateFailed:    "No se pudo actualizar el registro en %s",
	keyDeleteFailed:    "No se pudo eliminar el registro de %s",
	keyDeletePartial:   "El registro de %s se conservó porque fallaron %d pasos relacionados",
	keyNotFound:        "El registro no existe en %s",
	keyReadOnly:        "%s no se puede modificar",
	keyInvalid:         "Los datos enviados no son válidos: %s",
	keyForbidden:       "No tiene permiso para realizar esta acción",
	keySessionRequired: "Su sesión expiró; inicie sesión nuevamente",
	keyInternal:        "Ocurrió un error inesperado",
}

var supported = []language.Tag{language.Spanish, language.English}

func buildCatalog() (catalog.Catalog, error) {
	b := catalog.NewBuilder(catalog.Fallback(language.Spanish))
	for key, es := range spanish {
		if err := b.SetString(language.Spanish, key, es); err != nil {
			return nil, fmt.Errorf("catalog es %q: %w", key, err)
		}
		if err := b.SetString(language.English, key, key); err != nil {
			return nil, fmt.Errorf("catalog en %q: %w", key, err)
		}
	}
	return b, nil
}

// Messages builds localized notifications.
type Messages struct {
	tag     language.Tag
	printer *message.Printer
}

// NewMessages returns messages for the closest supported language to tag.
// Spanish is the fallback.
func NewMessages(tag language.Tag) *Messages {
	cat, err := buildCatalog()
	if err != nil {
		panic(err)
	}
	resolved := language.Spanish
	if _, idx, conf := language.NewMatcher(supported).Match(tag); conf != language.No {
		resolved = supported[idx]
	}
	return &Messages{tag: resolved, printer: message.NewPrinter(resolved, message.Catalog(cat))}
}

// Tag returns the resolved language.
func (m *Messages) Tag() language.Tag {
	return m.tag
}

func (m *Messages) sprintf(key string, args ...any) string {
	return m.printer.Sprintf(key, args...)
}

// Inserted, Updated and Deleted describe an applied change to entity.
func (m *Messages) Inserted(entity, label string) Notification {
	return Notification{Kind: KindSuccess, Title: entity, Message: m.sprintf(keyInserted, label)}
}

func (m *Messages) Updated(entity, label string) Notification {
	return Notification{Kind: KindInfo, Title: entity, Message: m.sprintf(keyUpdated, label)}
}

func (m *Messages) Deleted(entity, label string) Notification {
	return Notification{Kind: KindDefault, Title: entity, Message: m.sprintf(keyDeleted, label)}
}

// FetchFailed reports that the initial load of entity failed.
func (m *Messages) FetchFailed(entity string) Notification {
	return Notification{Kind: KindError, Title: entity, Message: m.sprintf(keyFetchFailed, entity)}
}

// SubscribeFailed reports that the live channel for entity could not open.
func (m *Messages) SubscribeFailed(entity string) Notification {
	return Notification{Kind: KindError, Title: entity, Message: m.sprintf(keySubscribeFailed, entity)}
}

// Resyncing reports a dropped live channel that is being re-established.
func (m *Messages) Resyncing(entity string) Notification {
	return Notification{Kind: KindWarning, Title: entity, Message: m.sprintf(keyResync, entity)}
}

// InsertFailed, UpdateFailed and DeleteFailed report failed writes.
func (m *Messages) InsertFailed(entity string) string { return m.sprintf(keyInsertFailed, entity) }

func (m *Messages) UpdateFailed(entity string) string { return m.sprintf(keyUpdateFailed, entity) }

func (m *Messages) DeleteFailed(entity string) string { return m.sprintf(keyDeleteFailed, entity) }

// DeletePartial reports a cascade delete that kept the parent because
// some relation steps failed.
func (m *Messages) DeletePartial(entity string, failed int) string {
	return m.sprintf(keyDeletePartial, entity, failed)
}

func (m *Messages) NotFound(entity string) string { return m.sprintf(keyNotFound, entity) }

func (m *Messages) ReadOnly(entity string) string { return m.sprintf(keyReadOnly, entity) }

func (m *Messages) Invalid(detail string) string { return m.sprintf(keyInvalid, detail) }

func (m *Messages) Forbidden() string { return m.sprintf(keyForbidden) }

func (m *Messages) SessionRequired() string { return m.sprintf(keySessionRequired) }

func (m *Messages) Internal() string { return m.sprintf(keyInternal) }
