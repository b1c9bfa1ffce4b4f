package httpapi

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/eventsapi/internal/core/domain"
)

const (
	imageField = "image"
	// maxEventBodySize leaves room for the form fields next to one attachment.
	maxEventBodySize = domain.MaxAttachmentSize + maxJSONBodySize
	multipartMemory  = 1 << 20
)

type eventResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	Location    string  `json:"location"`
	ImageURL    *string `json:"imageUrl"`
	CreatedBy   string  `json:"createdBy"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

type eventInput struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Location    string `json:"location"`
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.List(r.Context(), domain.EventFilter{Search: r.URL.Query().Get("search")}, userIDFromContext(r.Context()))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}

	result := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		result = append(result, toEventResponse(ev))
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.events.Get(r.Context(), chi.URLParam(r, "id"), userIDFromContext(r.Context()))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	fields, attachment, cleanup, ok := h.readEventForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	ev, err := h.events.Create(r.Context(), fields, attachment, mutationMetadata(r))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

func (h *Handler) updateEvent(w http.ResponseWriter, r *http.Request) {
	fields, attachment, cleanup, ok := h.readEventForm(w, r)
	if !ok {
		return
	}
	defer cleanup()

	ev, err := h.events.Update(r.Context(), chi.URLParam(r, "id"), fields, attachment, mutationMetadata(r))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

func (h *Handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.events.Delete(r.Context(), chi.URLParam(r, "id"), mutationMetadata(r)); err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, errorResponse{Message: msgDeleted})
}

func (h *Handler) eventHistory(w http.ResponseWriter, r *http.Request) {
	items, err := h.audit.EventHistory(r.Context(), chi.URLParam(r, "id"), userIDFromContext(r.Context()))
	if err != nil {
		h.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// readEventForm accepts multipart/form-data (with an optional "image" file),
// urlencoded forms and JSON bodies. The returned cleanup must always be called
// when ok is true.
func (h *Handler) readEventForm(w http.ResponseWriter, r *http.Request) (domain.EventFields, *domain.Attachment, func(), bool) {
	noop := func() {}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		var in eventInput
		if !decodeJSON(w, r, &in) {
			return domain.EventFields{}, nil, noop, false
		}
		return in.fields(), nil, noop, true

	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxEventBodySize)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			writeFormError(w, err)
			return domain.EventFields{}, nil, noop, false
		}
		cleanup := func() { _ = r.MultipartForm.RemoveAll() }

		fields := formFields(r)
		file, header, err := r.FormFile(imageField)
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return fields, nil, cleanup, true
			}
			cleanup()
			writeError(w, http.StatusBadRequest, "invalid image upload")
			return domain.EventFields{}, nil, noop, false
		}
		attachment := toAttachment(file, header)
		return fields, attachment, func() {
			_ = file.Close()
			cleanup()
		}, true

	default:
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
		if err := r.ParseForm(); err != nil {
			writeFormError(w, err)
			return domain.EventFields{}, nil, noop, false
		}
		return formFields(r), nil, noop, true
	}
}

func writeFormError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusBadRequest, "image must not exceed 5 MiB")
		return
	}
	writeError(w, http.StatusBadRequest, "invalid form body")
}

func formFields(r *http.Request) domain.EventFields {
	return domain.EventFields{
		Title:       strings.TrimSpace(r.PostFormValue("title")),
		Type:        strings.TrimSpace(r.PostFormValue("type")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		Date:        strings.TrimSpace(r.PostFormValue("date")),
		Location:    strings.TrimSpace(r.PostFormValue("location")),
	}
}

func (in eventInput) fields() domain.EventFields {
	return domain.EventFields{
		Title:       strings.TrimSpace(in.Title),
		Type:        strings.TrimSpace(in.Type),
		Description: strings.TrimSpace(in.Description),
		Date:        strings.TrimSpace(in.Date),
		Location:    strings.TrimSpace(in.Location),
	}
}

func toAttachment(file multipart.File, header *multipart.FileHeader) *domain.Attachment {
	return &domain.Attachment{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
}

func toEventResponse(ev domain.Event) eventResponse {
	resp := eventResponse{
		ID:          ev.ID,
		Title:       ev.Title,
		Type:        ev.Type,
		Description: ev.Description,
		Date:        formatTime(ev.Date),
		Location:    ev.Location,
		CreatedBy:   ev.CreatedBy,
		CreatedAt:   formatTime(ev.CreatedAt),
		UpdatedAt:   formatTime(ev.UpdatedAt),
	}
	if ev.ImageURL != "" {
		url := ev.ImageURL
		resp.ImageURL = &url
	}
	return resp
}
