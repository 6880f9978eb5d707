package execution

import (
	"net/http"
	"time"

	"nodelink/internal/blocks"
	"nodelink/internal/catalog"
)

// Options tunes variant behaviour
type Options struct {
	APITimeout    time.Duration // per request
	APIMaxRetries int           // retries after the first attempt
	RetryBackoff  time.Duration // initial backoff between retries
	MaxWaitDelay  time.Duration // cap for WAIT blocks
	APIKeyPrefix  string        // env prefix scanned by API_KEY blocks
}

// DefaultOptions returns the settings used when config leaves them unset
func DefaultOptions() Options {
	return Options{
		APITimeout:    10 * time.Second,
		APIMaxRetries: 2,
		RetryBackoff:  500 * time.Millisecond,
		MaxWaitDelay:  5 * time.Minute,
		APIKeyPrefix:  "READ_",
	}
}

// Deps are the collaborators shared by all variants
type Deps struct {
	Catalog  *catalog.Catalog
	Client   *http.Client
	Dialogue *DialogueHub
	Recorder Recorder
	Options  Options
}

// NewVariantRegistry registers every block variant
func NewVariantRegistry(deps Deps) *blocks.Registry {
	if deps.Catalog == nil {
		deps.Catalog = catalog.MustLoad()
	}
	if deps.Client == nil {
		deps.Client = &http.Client{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Dialogue == nil {
		deps.Dialogue = NewDialogueHub(10*time.Minute, deps.Recorder)
	}
	defaults := DefaultOptions()
	if deps.Options.APITimeout <= 0 {
		deps.Options.APITimeout = defaults.APITimeout
	}
	if deps.Options.APIMaxRetries < 0 {
		deps.Options.APIMaxRetries = 0
	}
	if deps.Options.RetryBackoff <= 0 {
		deps.Options.RetryBackoff = defaults.RetryBackoff
	}
	if deps.Options.MaxWaitDelay <= 0 {
		deps.Options.MaxWaitDelay = defaults.MaxWaitDelay
	}
	if deps.Options.APIKeyPrefix == "" {
		deps.Options.APIKeyPrefix = defaults.APIKeyPrefix
	}

	r := blocks.NewRegistry()
	r.Register(blocks.TypeStart, func() blocks.Variant { return &StartBlock{} })
	r.Register(blocks.TypeAPI, func() blocks.Variant { return NewAPIBlock(deps) })
	r.Register(blocks.TypeLogic, func() blocks.Variant { return &LogicBlock{operation: OpAdd} })
	r.Register(blocks.TypeTransform, func() blocks.Variant { return &TransformBlock{rec: deps.Recorder, kind: TransformToString} })
	r.Register(blocks.TypeStringBuilder, func() blocks.Variant { return &StringBuilderBlock{rec: deps.Recorder} })
	r.Register(blocks.TypeWait, func() blocks.Variant { return &WaitBlock{delay: 1, max: deps.Options.MaxWaitDelay} })
	r.Register(blocks.TypeDialogue, func() blocks.Variant { return &DialogueBlock{hub: deps.Dialogue} })
	r.Register(blocks.TypeLoop, func() blocks.Variant { return &LoopBlock{} })
	r.Register(blocks.TypeReact, func() blocks.Variant { return &ReactBlock{} })
	r.Register(blocks.TypeGetKey, func() blocks.Variant { return &GetKeyBlock{} })
	r.Register(blocks.TypeAPIKey, func() blocks.Variant { return &APIKeyBlock{prefix: deps.Options.APIKeyPrefix} })
	return r
}
