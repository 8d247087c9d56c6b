package registry

import "modelcore/internal/provider"

// builtinCapabilities covers widely deployed models so resolution works
// before any workspace has synced its catalog. Synced and manually curated
// rows in the database take precedence over these entries.
var builtinCapabilities = []provider.ModelInfo{
	{Provider: provider.OpenAI, ModelID: "gpt-4o", ProviderModel: "gpt-4o", DisplayName: "GPT-4o", Category: "chat", InputCap: 128000, OutputCap: 4096},
	{Provider: provider.OpenAI, ModelID: "gpt-4o-mini", ProviderModel: "gpt-4o-mini", DisplayName: "GPT-4o mini", Category: "chat", InputCap: 128000, OutputCap: 16384},
	{Provider: provider.OpenAI, ModelID: "gpt-4.1", ProviderModel: "gpt-4.1", DisplayName: "GPT-4.1", Category: "chat", InputCap: 1000000, OutputCap: 32768},
	{Provider: provider.OpenAI, ModelID: "gpt-5", ProviderModel: "gpt-5", DisplayName: "GPT-5", Category: "reasoning", InputCap: 200000, OutputCap: 8192},
	{Provider: provider.OpenAI, ModelID: "o3", ProviderModel: "o3", DisplayName: "o3", Category: "reasoning", InputCap: 200000, OutputCap: 100000},
	{Provider: provider.OpenAI, ModelID: "o4-mini", ProviderModel: "o4-mini", DisplayName: "o4-mini", Category: "reasoning", InputCap: 200000, OutputCap: 100000},
	{Provider: provider.Anthropic, ModelID: "claude-sonnet-4-20250514", ProviderModel: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4", Category: "chat", InputCap: 200000, OutputCap: 64000},
	{Provider: provider.Anthropic, ModelID: "claude-opus-4-20250514", ProviderModel: "claude-opus-4-20250514", DisplayName: "Claude Opus 4", Category: "chat", InputCap: 200000, OutputCap: 32000},
	{Provider: provider.Anthropic, ModelID: "claude-3-5-haiku-20241022", ProviderModel: "claude-3-5-haiku-20241022", DisplayName: "Claude 3.5 Haiku", Category: "chat", InputCap: 200000, OutputCap: 8192},
	{Provider: provider.AzureOpenAI, ModelID: "azure/gpt-4o", ProviderModel: "gpt-4o", DisplayName: "Azure GPT-4o", Category: "chat", InputCap: 128000, OutputCap: 4096},
	{Provider: provider.AzureOpenAI, ModelID: "azure/gpt-4o-mini", ProviderModel: "gpt-4o-mini", DisplayName: "Azure GPT-4o mini", Category: "chat", InputCap: 128000, OutputCap: 16384},
	{Provider: provider.Google, ModelID: "gemini-2.0-flash", ProviderModel: "gemini-2.0-flash", DisplayName: "Gemini 2.0 Flash", Category: "chat", InputCap: 1048576, OutputCap: 8192},
	{Provider: provider.Google, ModelID: "gemini-1.5-pro", ProviderModel: "gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro", Category: "chat", InputCap: 2097152, OutputCap: 8192},
	{Provider: provider.Google, ModelID: "gemini-1.5-flash", ProviderModel: "gemini-1.5-flash", DisplayName: "Gemini 1.5 Flash", Category: "chat", InputCap: 1048576, OutputCap: 8192},
}

// staticLookup indexes builtinCapabilities by model id.
var staticLookup = func() map[string]provider.ModelInfo {
	index := make(map[string]provider.ModelInfo, len(builtinCapabilities))
	for _, info := range builtinCapabilities {
		index[info.ModelID] = info
	}
	return index
}()
