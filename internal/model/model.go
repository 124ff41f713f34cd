package model

import (
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
)

// Alias per esporre tipi comuni ai servizi

type (
	Reading       = messages.Reading
	PumpDecision  = messages.PumpDecision
	PumpCommand   = messages.PumpCommand
	DeviceSummary = messages.DeviceSummary
	SummaryRow    = messages.SummaryRow
	Alert         = entities.Alert
	ControlState  = entities.ControlState
	ControlEvent  = entities.ControlEvent
	DeviceStatus  = entities.DeviceStatus
	Mode          = entities.Mode
)

const (
	ModeAuto   = entities.ModeAuto
	ModeManual = entities.ModeManual
)
