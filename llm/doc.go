// Package llm provides a provider-neutral adapter layer for Large Language Model (LLM) APIs.
//
// This package defines the framework-facing types and contracts that allow callers
// to drive multiple LLM providers (OpenAI, Ollama, Anthropic) without being coupled
// to any specific provider's SDK.
//
// # Core Concepts
//
//  1. Prompts: A Prompt is either a single text or an ordered list of ChatMessages,
//     each with a role (user, assistant, system, or any other named role).
//
//  2. Options: Options carry the model name, API key, streaming flag and sampling
//     parameters. A Cascade layers executor defaults under per-invocation options.
//
//  3. Executor Interface: Execute() translates a prompt into a provider request, invokes
//     the provider with bounded retries and returns an Output. TokensUsed() and
//     MaxTokensAllowed() report context window usage without network I/O.
//
//  4. Output: An Output is either an immediate message collection or a lazy,
//     single-pass SegmentStream of role and content segments.
//
//  5. Embeddings Interface: EmbedTexts() and EmbedQuery() turn text into vectors.
//
//  6. Errors: The Error type classifies failures (transport, incomplete response,
//     empty response, rate limit, not available, template) so that retry policies
//     can decide from the error kind alone.
//
// Usage Example
//
//	exec, err := openai.NewExecutor(openai.Config{APIKey: key}, logger)
//	if err != nil {
//	    return err
//	}
//
//	prompt := llm.NewChatPrompt(
//	    llm.NewChatMessage(llm.RoleSystem, "You are terse."),
//	    llm.NewChatMessage(llm.RoleUser, "Hello!"),
//	)
//
//	out, err := exec.Execute(ctx, &llm.Options{Model: "gpt-4o-mini"}, prompt)
//	if err != nil {
//	    return err
//	}
//	text, err := out.Text(ctx)
//
// # Extension Points
//
// To add a new LLM provider:
//  1. Implement the Executor interface (and Embeddings, if the provider offers them)
//  2. Translate between llm types and the provider SDK types
//  3. Convert provider errors to *llm.Error so retry policies can classify them
//  4. Wrap provider calls with a retry.Policy
package llm
