package kernel

// Ordinals maps well-known kernel export names to their ordinals.
var Ordinals = map[string]int{
	"AvGetSavedDataAddress": 1,
	"AvSendTVEncoderOption": 2,
	"AvSetDisplayMode":      3,
	"AvSetSavedDataAddress": 4,
	"HalReturnToFirmware":   49,
	"KeTickCount":           156,
	"LaunchDataPage":        164,
	"XboxEEPROMKey":         321,
	"XboxHardwareInfo":      322,
	"XboxHDKey":             323,
	"XboxKrnlVersion":       324,
	"XboxSignatureKey":      325,
	"XeImageFileName":       326,
	"XeLoadSection":         327,
	"XeUnloadSection":       328,
}
