package dto

// binding tags are checked by gin (422 on failure), validate tags by the
// services (400 on failure).

type SignupDTO struct {
	Username             string `form:"username"              json:"username"              binding:"required" validate:"username"`
	Email                string `form:"email"                 json:"email"                 validate:"omitempty,emailaddr"`
	Fullname             string `form:"fullname"              json:"fullname"              validate:"omitempty,max=255"`
	Password             string `form:"password"              json:"password"              binding:"required" validate:"required,max=72"`
	ConfirmationPassword string `form:"confirmation_password" json:"confirmation_password" binding:"required"`
}

type TokenDTO struct {
	GrantType    string `form:"grant_type"    binding:"required" validate:"oneof=password refresh_token"`
	Username     string `form:"username"      validate:"required_if=GrantType password"`
	Password     string `form:"password"      validate:"required_if=GrantType password"`
	RefreshToken string `form:"refresh_token" validate:"required_if=GrantType refresh_token"`
}

type UserUpdateDTO struct {
	Email    *string `form:"email"    json:"email"    validate:"omitempty,emailaddr"`
	Fullname *string `form:"fullname" json:"fullname" validate:"omitempty,max=255"`
}

type UserFilterDTO struct {
	Username string `form:"username"`
	Email    string `form:"email"    validate:"omitempty,emailaddr"`
	Fullname string `form:"fullname"`
}

type PageDTO struct {
	Size   int `form:"page[size],default=10"   binding:"min=1"`
	Number int `form:"page[number],default=1" binding:"min=1"`
}

type IDDTO struct {
	ID int64 `uri:"id" binding:"required,min=1"`
}
