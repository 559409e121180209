package models

import "time"

// User is the projection of the platform account needed for billing.
type User struct {
	ID                   string    `gorm:"column:id;type:varchar(64);primary_key" json:"id"`
	Email                string    `gorm:"column:email;type:varchar(255);not null;uniqueIndex" json:"email"`
	Name                 string    `gorm:"column:name;type:varchar(255)" json:"name"`
	ProviderCustomerCode *string   `gorm:"column:provider_customer_code;type:varchar(128)" json:"provider_customer_code"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
