package styles

const (
	AppIcon string = "◇"

	PinIcon     string = "★"
	CheckIcon   string = "✓"
	ErrorIcon   string = "✖"
	WarningIcon string = "⚠"
	InfoIcon    string = "ℹ"
	LoadingIcon string = "⟳"
)
