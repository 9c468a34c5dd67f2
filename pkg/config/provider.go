package config

import (
	"fmt"
	"os"

	"github.com/entrhq/webprobe/pkg/llm/openai"
)

// BuildProvider creates an LLM provider based on configuration precedence:
// explicit values > environment variables > config file > defaults.
// Extra options are applied after the resolved model and base URL.
func BuildProvider(model, baseURL, apiKey, defaultModel string, opts ...openai.ProviderOption) (*openai.Provider, error) {
	finalModel := model
	finalBaseURL := baseURL
	finalAPIKey := apiKey

	if finalAPIKey == "" {
		finalAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if finalBaseURL == "" {
		finalBaseURL = os.Getenv("OPENAI_BASE_URL")
	}

	if fromFile := GetLLM(); fromFile != nil {
		// The file model only wins over an unset or default model.
		if model == "" || model == defaultModel {
			if m := fromFile.GetModel(); m != "" {
				finalModel = m
			}
		}
		if finalBaseURL == "" {
			finalBaseURL = fromFile.GetBaseURL()
		}
		if finalAPIKey == "" {
			finalAPIKey = fromFile.GetAPIKey()
		}
	}

	if finalModel == "" {
		finalModel = defaultModel
	}

	if finalAPIKey == "" {
		return nil, fmt.Errorf("API key is required. Set OPENAI_API_KEY or WEBPROBE_API_KEY, use -api-key flag, or configure in ~/.webprobe/config.json")
	}

	providerOpts := []openai.ProviderOption{
		openai.WithModel(finalModel),
	}
	if finalBaseURL != "" {
		providerOpts = append(providerOpts, openai.WithBaseURL(finalBaseURL))
	}
	providerOpts = append(providerOpts, opts...)

	provider, err := openai.NewProvider(finalAPIKey, providerOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	return provider, nil
}

// ReportModel resolves the bug report model: the explicit value, then the
// config file. Empty means reuse the planning model.
func ReportModel(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fromFile := GetLLM(); fromFile != nil {
		return fromFile.GetReportModel()
	}
	return ""
}
