package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/medipals/internal/handlers/render"
	"github.com/nkiryanov/medipals/internal/handlers/userctx"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/service/lesson"
)

func handleCreateLesson(lessonService lessonService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		params, err := render.BindAndValidate[lesson.Params](w, r)
		if err != nil {
			return
		}

		ls, err := lessonService.Create(r.Context(), user, params)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSONWithStatus(w, newLessonResponse(ls), http.StatusCreated)
	})
}

// handleListLessons returns offered lessons, ?tutor_id= narrows them to one tutor
func handleListLessons(lessonService lessonService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tutorID uuid.UUID
		if raw := r.URL.Query().Get("tutor_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				render.ValidationErrors(w, map[string]string{"tutor_id": "Must be a valid UUID"})
				return
			}
			tutorID = id
		}

		lessons, err := lessonService.List(r.Context(), tutorID)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, mapSlice(lessons, newLessonResponse))
	})
}

func handleGetLesson(lessonService lessonService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		ls, err := lessonService.Get(r.Context(), id)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, newLessonResponse(ls))
	})
}

func handleUpdateLesson(lessonService lessonService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		params, err := render.BindAndValidate[lesson.Params](w, r)
		if err != nil {
			return
		}

		ls, err := lessonService.Update(r.Context(), user.ID, id, params)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, newLessonResponse(ls))
	})
}

func handleDeleteLesson(lessonService lessonService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		if err := lessonService.Delete(r.Context(), user.ID, id); err != nil {
			renderError(w, l, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}
