package api

import (
	"AeroTrend/internal/domain/models"
	"AeroTrend/internal/services/trend"
)

type CreateSessionRequest struct {
	ID     string        `json:"id" validate:"omitempty,max=128"`
	Preset string        `json:"preset" validate:"omitempty,oneof=generic flight"`
	Config *trend.Config `json:"config"`
}

type SessionIDRequest struct {
	ID string `param:"id" validate:"required"`
}

type TickRequest struct {
	ID        string             `param:"id" validate:"required"`
	Timestamp int64              `json:"t"`
	Samples   []float64          `json:"samples" validate:"required_without=Words"`
	Words     []models.ARINCWord `json:"words"`
}

type ClassifyRequest struct {
	ID      string      `param:"id" validate:"required"`
	Windows [][]float64 `json:"windows" validate:"required,min=1"`
}

type HistoryRequest struct {
	ID    string `param:"id" validate:"required"`
	From  string `query:"from"`
	To    string `query:"to"`
	Limit int    `query:"limit" default:"100" validate:"gte=1,lte=5000"`
}

type LatestManyRequest struct {
	IDs string `query:"ids" validate:"required"`
}

type DecodeBCDRequest struct {
	Bits   string `json:"bits" validate:"required_without=Array"`
	Array  []int  `json:"array" validate:"omitempty,len=19,dive,gte=0,lte=1"`
	Strict bool   `json:"strict"`
}

type EncodeBCDRequest struct {
	Value  *float64 `json:"value" validate:"required"`
	Strict bool     `json:"strict"`
}

// ReverseLabelRequest takes either an octal table label or a wire-order byte.
type ReverseLabelRequest struct {
	Octal string `json:"octal" validate:"required_without=Wire,omitempty,len=3"`
	Wire  *uint8 `json:"wire"`
}

type TickResponse struct {
	models.ClassificationResult
	HostFrame models.HostFrame `json:"host_frame"`
}

type BCDResponse struct {
	Value  float64 `json:"value"`
	Digits [5]int  `json:"digits"`
	Bits   string  `json:"bits"`
	Array  []int   `json:"array"`
}

type LabelResponse struct {
	Octal     string `json:"octal"`
	Label     uint8  `json:"label"`
	Wire      uint8  `json:"wire"`
	WireOctal string `json:"wire_octal"`
}

type PresetResponse struct {
	Name   string       `json:"name"`
	Config trend.Config `json:"config"`
}
