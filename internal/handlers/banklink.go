package handlers

import (
	"net/http"

	"github.com/nkiryanov/medipals/internal/handlers/render"
	"github.com/nkiryanov/medipals/internal/handlers/userctx"
	"github.com/nkiryanov/medipals/internal/logger"
	"github.com/nkiryanov/medipals/internal/models"
)

func handleLinkBank(bankLinkService bankLinkService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		details, err := render.BindAndValidate[models.BankDetails](w, r)
		if err != nil {
			return
		}

		link, err := bankLinkService.LinkBank(r.Context(), user.ID, details)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSONWithStatus(w, newBankLinkResponse(link), http.StatusCreated)
	})
}

func handleListBankLinks(bankLinkService bankLinkService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		links, err := bankLinkService.ListBankLinks(r.Context(), user.ID)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, mapSlice(links, newBankLinkResponse))
	})
}

func handleGetBankLink(bankLinkService bankLinkService, l logger.Logger) http.Handler {
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

		link, err := bankLinkService.GetBankLink(r.Context(), user.ID, id)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, newBankLinkResponse(link))
	})
}

func handleUnlinkBank(bankLinkService bankLinkService, l logger.Logger) http.Handler {
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

		if err := bankLinkService.UnlinkBank(r.Context(), user.ID, id); err != nil {
			renderError(w, l, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}
