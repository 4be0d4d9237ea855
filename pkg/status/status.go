package status

const (
	OK                    = "OK"
	CREATED               = "CREATED"
	BAD_REQUEST           = "BAD_REQUEST"
	UNAUTHORIZED          = "UNAUTHORIZED"
	FORBIDDEN             = "FORBIDDEN"
	NOT_FOUND             = "NOT_FOUND"
	CONFLICT              = "CONFLICT"
	GONE                  = "GONE"
	UNPROCESSABLE_ENTITY  = "UNPROCESSABLE_ENTITY"
	INTERNAL_SERVER_ERROR = "INTERNAL_SERVER_ERROR"
	BAD_GATEWAY           = "BAD_GATEWAY"

	// checkout domain codes
	ITEM_UNAVAILABLE      = "ITEM_UNAVAILABLE"
	ACTIVE_INTENT_EXISTS  = "ACTIVE_INTENT_EXISTS"
	INTENT_EXPIRED        = "INTENT_EXPIRED"
	INVALID_STATE         = "INVALID_STATE"
	SOLD_OUT              = "SOLD_OUT"
	GATEWAY_ERROR         = "GATEWAY_ERROR"
	PAYMENT_NOT_SETTLED   = "PAYMENT_NOT_SETTLED"
	INVALID_SIGNATURE     = "INVALID_SIGNATURE"
)
