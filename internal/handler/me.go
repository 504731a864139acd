package handler

import (
	"errors"
	"net/http"

	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/credential"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/repository"
)

func (h *Handler) GetMyInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, myInfoFromContext(r))
}

func (h *Handler) UpdateMyInfo(w http.ResponseWriter, r *http.Request) {
	myInfo := myInfoFromContext(r)

	var req struct {
		FirstName *string `json:"first_name" validate:"omitnil,max=150"`
		LastName  *string `json:"last_name" validate:"omitnil,max=150"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.validationError(w, r, h.fieldErrors(err))
		return
	}

	if req.FirstName != nil {
		myInfo.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		myInfo.LastName = *req.LastName
	}

	if err := h.repository.UpdateUser(r.Context(), myInfo); err != nil {
		switch {
		case errors.Is(err, repository.ErrEditConflict):
			h.errorResponse(w, r, http.StatusConflict, "数据已被修改，请重试")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.writeJSON(w, r, http.StatusOK, myInfo)
}

func (h *Handler) UpdateMyPassword(w http.ResponseWriter, r *http.Request) {
	myInfo := myInfoFromContext(r)

	var req struct {
		OldPassword string `json:"old_password" validate:"required"`
		NewPassword string `json:"new_password" validate:"required,min=6,bcrypt_len"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.validationError(w, r, h.fieldErrors(err))
		return
	}

	profile, err := h.repository.GetProfileByUserID(r.Context(), myInfo.ID)
	if err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
		h.internalServerError(w, r, err)
		return
	}

	// 导入的用户还没有本系统的密码，旧密码同样允许用旧系统的哈希校验
	if credential.Verify(req.OldPassword, myInfo.PasswordHash, profile.LegacyHash()) == credential.Rejected {
		h.validationError(w, r, FieldErrors{"old_password": {"旧密码错误"}})
		return
	}

	hashedPassword, err := credential.HashPassword(req.NewPassword)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	if err := h.repository.SetPassword(r.Context(), myInfo.ID, hashedPassword); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.detailResponse(w, r, "更新密码成功")
}
