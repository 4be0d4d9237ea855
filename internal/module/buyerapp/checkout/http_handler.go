package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/livecart/lc-checkout/internal/module/buyerapp/paygate"
	internalMiddleware "github.com/livecart/lc-checkout/internal/pkg/middleware"
	"github.com/livecart/lc-checkout/internal/pkg/session"
	"github.com/livecart/lc-checkout/pkg/errors"
	publicMiddleware "github.com/livecart/lc-checkout/pkg/middleware"
	"github.com/livecart/lc-checkout/pkg/response"
	"github.com/livecart/lc-checkout/pkg/status"
)

const signatureHeader = "X-Paygate-Signature"

type HTTPHandler struct {
	Validate        *validator.Validate
	CheckoutUseCase CheckoutUseCase
	Paygate         paygate.PaygateRepository
}

func InitHTTPHandler(router *mux.Router, buyerSession *internalMiddleware.BuyerSession, operatorSession *internalMiddleware.OperatorSession, validate *validator.Validate, checkoutUseCase CheckoutUseCase, paygateRepository paygate.PaygateRepository) {
	handler := &HTTPHandler{
		Validate:        validate,
		CheckoutUseCase: checkoutUseCase,
		Paygate:         paygateRepository,
	}

	router.HandleFunc("/lc-checkout/v1/buyerapp/checkout-intents", publicMiddleware.SetRouteChain(handler.CreateIntent, buyerSession.Verify)).Methods(http.MethodPost)
	router.HandleFunc("/lc-checkout/v1/buyerapp/checkout-intents/on-payment-notification", publicMiddleware.SetRouteChain(handler.OnPaymentNotification)).Methods(http.MethodPost)
	router.HandleFunc("/lc-checkout/v1/buyerapp/checkout-intents/on-expire", publicMiddleware.SetRouteChain(handler.OnExpireIntent)).Methods(http.MethodPost)
	router.HandleFunc("/lc-checkout/v1/buyerapp/checkout-intents/{id}", publicMiddleware.SetRouteChain(handler.GetIntent, buyerSession.Verify)).Methods(http.MethodGet)
	router.HandleFunc("/lc-checkout/v1/buyerapp/checkout-intents/{id}", publicMiddleware.SetRouteChain(handler.CancelIntent, buyerSession.Verify)).Methods(http.MethodDelete)
	router.HandleFunc("/lc-checkout/v1/buyerapp/checkout-intents/{id}/payment", publicMiddleware.SetRouteChain(handler.InitiatePayment, buyerSession.Verify)).Methods(http.MethodPost)
	router.HandleFunc("/lc-checkout/v1/buyerapp/checkout-intents/{id}/confirm", publicMiddleware.SetRouteChain(handler.ConfirmPayment, buyerSession.Verify)).Methods(http.MethodPost)
	router.HandleFunc("/lc-checkout/v1/buyerapp/orders", publicMiddleware.SetRouteChain(handler.GetManyOrder, buyerSession.Verify)).Methods(http.MethodGet)
	router.HandleFunc("/lc-checkout/v1/buyerapp/compensations", publicMiddleware.SetRouteChain(handler.GetManyPendingCompensation, operatorSession.Verify)).Methods(http.MethodGet)
}

func (handler HTTPHandler) validate(ctx context.Context, payload interface{}) error {
	err := handler.Validate.StructCtx(ctx, payload)
	if err == nil {
		return nil
	}

	errorFields := err.(validator.ValidationErrors)

	errMessages := make([]string, len(errorFields))

	for k, errorField := range errorFields {
		errMessages[k] = fmt.Sprintf("invalid '%s' with value '%v'", errorField.Field(), errorField.Value())
	}

	return fmt.Errorf("%s", strings.Join(errMessages, ", "))
}

func (handler HTTPHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := CreateIntentRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.JSON(w, http.StatusUnprocessableEntity, response.RESTEnvelope{
			Status:  status.UNPROCESSABLE_ENTITY,
			Message: err.Error(),
		})
		return
	}

	if err := handler.validate(ctx, req); err != nil {
		response.JSON(w, http.StatusBadRequest, response.RESTEnvelope{
			Status:  status.BAD_REQUEST,
			Message: err.Error(),
		})
		return
	}

	resp, err := handler.CheckoutUseCase.CreateIntent(ctx, req)
	if err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})
		return
	}

	response.JSON(w, http.StatusCreated, response.RESTEnvelope{
		Status:  status.CREATED,
		Message: "checkout intent has been successfully created",
		Data:    resp,
	})
}

func (handler HTTPHandler) GetIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := handler.CheckoutUseCase.GetIntent(ctx, mux.Vars(r)["id"])
	if err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "checkout intent's properties",
		Data:    resp,
	})
}

func (handler HTTPHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := handler.CheckoutUseCase.InitiatePayment(ctx, mux.Vars(r)["id"])
	if err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "payment has been successfully initiated",
		Data:    resp,
	})
}

type confirmPaymentRequest struct {
	ExternalPaymentRef string `json:"external_payment_ref" validate:"required"`
}

// ConfirmPayment is the client-poll confirmation path; the webhook path lands
// in OnPaymentNotification with identical semantics.
func (handler HTTPHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req := confirmPaymentRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.JSON(w, http.StatusUnprocessableEntity, response.RESTEnvelope{
			Status:  status.UNPROCESSABLE_ENTITY,
			Message: err.Error(),
		})
		return
	}

	if err := handler.validate(ctx, req); err != nil {
		response.JSON(w, http.StatusBadRequest, response.RESTEnvelope{
			Status:  status.BAD_REQUEST,
			Message: err.Error(),
		})
		return
	}

	resp, err := handler.CheckoutUseCase.ConfirmPayment(ctx, mux.Vars(r)["id"], req.ExternalPaymentRef)
	if err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "payment has been successfully confirmed",
		Data:    resp,
	})
}

func (handler HTTPHandler) CancelIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acc, err := session.GetAccountFromCtx(ctx)
	if err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})
		return
	}

	if err := handler.CheckoutUseCase.CancelIntent(ctx, mux.Vars(r)["id"], fmt.Sprintf("buyer:%d", acc.ID)); err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "checkout intent has been successfully cancelled",
	})
}

func (handler HTTPHandler) GetManyOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	qs := r.URL.Query()

	req := GetManyOrderRequest{}
	req.Page, _ = strconv.ParseInt(qs.Get("page"), 10, 64)
	req.Size, _ = strconv.ParseInt(qs.Get("size"), 10, 64)

	if err := handler.validate(ctx, req); err != nil {
		response.JSON(w, http.StatusBadRequest, response.RESTEnvelope{
			Status:  status.BAD_REQUEST,
			Message: err.Error(),
		})
		return
	}

	resp, err := handler.CheckoutUseCase.GetManyOrder(ctx, req)
	if err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "list of orders",
		Data:    resp,
	})
}

func (handler HTTPHandler) GetManyPendingCompensation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	resp, err := handler.CheckoutUseCase.GetManyPendingCompensation(ctx, limit)
	if err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "list of pending payment compensations",
		Data:    resp,
	})
}

func (handler HTTPHandler) OnPaymentNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		response.JSON(w, http.StatusUnprocessableEntity, response.RESTEnvelope{
			Status:  status.UNPROCESSABLE_ENTITY,
			Message: err.Error(),
		})
		return
	}

	if err := handler.Paygate.VerifyNotificationSignature(payload, r.Header.Get(signatureHeader)); err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})
		return
	}

	e := PaymentNotificationEvent{}
	if err := json.Unmarshal(payload, &e); err != nil {
		response.JSON(w, http.StatusUnprocessableEntity, response.RESTEnvelope{
			Status:  status.UNPROCESSABLE_ENTITY,
			Message: err.Error(),
		})
		return
	}

	if err := handler.CheckoutUseCase.OnPaymentNotification(ctx, e); err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "payment notification has been processed",
	})
}

func (handler HTTPHandler) OnExpireIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	e := ExpireIntentEvent{}
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		response.JSON(w, http.StatusUnprocessableEntity, response.RESTEnvelope{
			Status:  status.UNPROCESSABLE_ENTITY,
			Message: err.Error(),
		})
		return
	}

	if err := handler.CheckoutUseCase.OnExpireIntent(ctx, e); err != nil {
		ae := errors.Destruct(err)
		response.JSON(w, ae.HTTPStatusCode, response.RESTEnvelope{
			Status:  ae.Status,
			Message: ae.Message,
		})
		return
	}

	response.JSON(w, http.StatusOK, response.RESTEnvelope{
		Status:  status.OK,
		Message: "checkout intent has been expired if it was overdue",
	})
}
