package checkout

type CreateIntentRequest struct {
	ItemID   string `json:"item_id" validate:"required"`
	ShowID   string `json:"show_id" validate:"required"`
	Quantity int64  `json:"quantity" validate:"eq=1"`
}

type GetManyOrderRequest struct {
	Page int64 `validate:"required,min=1"`
	Size int64 `validate:"required,min=1,max=100"`
}
