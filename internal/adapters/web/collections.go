package web

import (
	"net/http"
	"reflect"

	"inventory-admin/internal/entity"

	"github.com/go-chi/chi/v5"
	"github.com/invopop/jsonschema"
	"github.com/shopspring/decimal"
)

// collectionRoutes mounts the CRUD surface for one entity store:
//
//	GET    /getAll
//	GET    /getById/{id}
//	POST   /add
//	PUT    /update/{id}
//	DELETE /delete/{id}
//	GET    /{id}/deletable
//	GET    /feed
//	GET    /schema
func collectionRoutes[T any](h *Handler, st *entity.Store[T]) func(chi.Router) {
	schema := formSchema[T]()
	return func(r chi.Router) {
		r.Get("/getAll", func(w http.ResponseWriter, r *http.Request) {
			items, err := st.GetAll(r.Context())
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, items)
		})

		r.Get("/getById/{id}", func(w http.ResponseWriter, r *http.Request) {
			v, err := st.GetByID(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, v)
		})

		r.With(RequestBodyLimit(maxBodyBytes)).Post("/add", func(w http.ResponseWriter, r *http.Request) {
			var v T
			if !decodeJSON(w, r, &v) {
				return
			}
			created, err := st.Add(r.Context(), v)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSONStatus(w, http.StatusCreated, created)
		})

		r.With(RequestBodyLimit(maxBodyBytes)).Put("/update/{id}", func(w http.ResponseWriter, r *http.Request) {
			var patch entity.Patch
			if !decodeJSON(w, r, &patch) {
				return
			}
			updated, err := st.Update(r.Context(), chi.URLParam(r, "id"), patch)
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, updated)
		})

		r.Delete("/delete/{id}", func(w http.ResponseWriter, r *http.Request) {
			res, err := st.Delete(r.Context(), chi.URLParam(r, "id"))
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			if !res.Success {
				writeErrorResponse(w, r, http.StatusConflict, errorResponse{
					Message:  res.Message,
					Blockers: res.Blockers,
					Code:     "REFERENCED",
				})
				return
			}
			writeJSON(w, res)
		})

		r.Get("/{id}/deletable", func(w http.ResponseWriter, r *http.Request) {
			rep, err := h.svc.CheckDeletable(r.Context(), st.Collection(), chi.URLParam(r, "id"))
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			writeJSON(w, rep)
		})

		r.Get("/feed", func(w http.ResponseWriter, r *http.Request) {
			serveFeed(h, st, w, r)
		})

		r.Get("/schema", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, schema)
		})
	}
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// formSchema describes T as the admin forms submit it. Money amounts travel
// as decimal strings.
func formSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == decimalType {
				return &jsonschema.Schema{Type: "string", Pattern: `^-?\d+(\.\d+)?$`}
			}
			return nil
		},
	}
	var v T
	return reflector.Reflect(v)
}
