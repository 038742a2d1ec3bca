package models

import (
	"fmt"
)

type Location struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

func (l Location) String() string {
	return fmt.Sprintf("%.6f,%.6f", l.Lat, l.Lng)
}
