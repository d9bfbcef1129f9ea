package models

import "time"

// PageView stores daily funnel view counts per path and campaign source.
type PageView struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Date      time.Time `gorm:"index:idx_pv_date_path_src,unique;type:date;not null" json:"date"`
	Path      string    `gorm:"index;index:idx_pv_date_path_src,unique;size:255;not null" json:"path"`
	UTMSource string    `gorm:"index:idx_pv_date_path_src,unique;size:128;not null;default:''" json:"utm_source"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
