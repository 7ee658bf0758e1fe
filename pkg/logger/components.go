package logger

// Component name constants for standardized logging
const (
	// Core components
	ComponentCore        = "Core"
	ComponentControlLoop = "ControlLoop"

	// Sequencer components
	ComponentBaseSequencer = "BaseSequencer"
	ComponentFeedCut       = "FeedCut"
	ComponentPickPlace     = "PickPlace"

	// Supporting components
	ComponentPlant         = "Plant"
	ComponentHTTPAPI       = "HTTPAPI"
	ComponentConfigManager = "ConfigManager"
)
