package agent

// compatibleBackend describes an OpenAI-compatible vendor endpoint.
type compatibleBackend struct {
	baseURL string
	model   string
}

var compatibleBackends = map[string]compatibleBackend{
	"deepseek": {baseURL: "https://api.deepseek.com/v1", model: "deepseek-chat"},
	"qwen":     {baseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", model: "qwen-plus"},
	"kimi":     {baseURL: "https://api.moonshot.cn/v1", model: "moonshot-v1-8k"},
}

// newCompatibleProvider creates an OpenAIProvider for a known vendor, filling
// in its default endpoint and model.
func newCompatibleProvider(name string, cfg OpenAIConfig) (*OpenAIProvider, error) {
	backend := compatibleBackends[name]
	if cfg.BaseURL == "" {
		cfg.BaseURL = backend.baseURL
	}
	if cfg.Model == "" {
		cfg.Model = backend.model
	}
	cfg.Name = name
	return NewOpenAIProvider(cfg)
}
