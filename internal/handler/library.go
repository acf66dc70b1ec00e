package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/homelibrary/internal/service"
)

// LibraryHandler serves /api/libraries.
//
// Membership decides everything here: a library the caller doesn't belong
// to answers 404 on reads, and owner-only actions answer 403 to members.
type LibraryHandler struct {
	libraries *service.LibraryService
	logger    *slog.Logger
}

func NewLibraryHandler(libraries *service.LibraryService, logger *slog.Logger) *LibraryHandler {
	return &LibraryHandler{libraries: libraries, logger: logger}
}

type createLibraryRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// joinRequest identifies the library by id, name or slug.
type joinRequest struct {
	Library  string `json:"library"`
	Password string `json:"password"`
}

type renameRequest struct {
	LibraryID int64  `json:"libraryId"`
	Name      string `json:"name"`
}

type transferRequest struct {
	UserID int64 `json:"userId"`
}

// HandleList returns the caller's libraries with their role in each.
//
// HTTP: GET /api/libraries
func (h *LibraryHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	libs, err := h.libraries.ListForUser(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, libs)
}

// HandleCreate creates a library owned by the caller.
//
// HTTP: POST /api/libraries
// Body: {"name": "Home", "password": "optional"}
func (h *LibraryHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createLibraryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	lib, err := h.libraries.Create(r.Context(), currentUser(r), service.CreateLibraryInput(req))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, lib)
}

// HandleJoin adds the caller as a member. Joining a library you already
// belong to succeeds without changes.
//
// HTTP: POST /api/libraries/join
// Body: {"library": "Home", "password": "..."}
func (h *LibraryHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	lib, err := h.libraries.Join(r.Context(), currentUser(r), req.Library, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lib)
}

// HandleSearch finds libraries to join.
//
// HTTP: GET /api/libraries/search?q=home
func (h *LibraryHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	libs, err := h.libraries.SearchToJoin(r.Context(), currentUser(r), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, libs)
}

// HandleRename changes a library's name. Owner only.
//
// HTTP: PUT /api/libraries/edit_name
// Body: {"libraryId": 3, "name": "Cottage"}
func (h *LibraryHandler) HandleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	lib, err := h.libraries.UpdateName(r.Context(), currentUser(r), req.LibraryID, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lib)
}

// HandleGet returns one library with the caller's role.
//
// HTTP: GET /api/libraries/{id}
func (h *LibraryHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	lib, err := h.libraries.Get(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lib)
}

// HandleGetBySlug is HandleGet keyed by slug.
//
// HTTP: GET /api/libraries/slug/{slug}
func (h *LibraryHandler) HandleGetBySlug(w http.ResponseWriter, r *http.Request) {
	lib, err := h.libraries.GetBySlug(r.Context(), currentUser(r), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, lib)
}

// HandleBooks lists the library's books; ?address= narrows to one address.
//
// HTTP: GET /api/libraries/{id}/books
func (h *LibraryHandler) HandleBooks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	books, err := h.libraries.Books(r.Context(), currentUser(r), id, r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// HandleMembers returns the roster.
//
// HTTP: GET /api/libraries/{id}/members
func (h *LibraryHandler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	members, err := h.libraries.Members(r.Context(), currentUser(r), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// HandleLeave removes the caller's membership. The owner can't leave.
//
// HTTP: POST /api/libraries/{id}/leave
func (h *LibraryHandler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.libraries.Leave(r.Context(), currentUser(r), id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "left library"})
}

// HandleTransfer hands ownership to another member.
//
// HTTP: POST /api/libraries/{id}/transfer
// Body: {"userId": 7}
func (h *LibraryHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.libraries.TransferOwnership(r.Context(), currentUser(r), id, req.UserID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "ownership transferred"})
}

// HandleDelete deletes the library with its books and memberships. Owner
// only.
//
// HTTP: DELETE /api/libraries/{id}
func (h *LibraryHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.libraries.Delete(r.Context(), currentUser(r), id, false); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
