package ai

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts are the system prompts of the two model calls.
type Prompts struct {
	Classify string `yaml:"classify"`
	Format   string `yaml:"format"`
}

// DefaultPrompts returns the built-in prompts.
func DefaultPrompts() Prompts {
	return Prompts{
		Classify: defaultClassifyPrompt,
		Format:   defaultFormatPrompt,
	}
}

// loadPrompts overrides the defaults with the non-empty keys of a YAML (or JSON) file.
func loadPrompts(path string, into *Prompts) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var prompts Prompts
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if prompts.Classify != "" {
		into.Classify = prompts.Classify
	}
	if prompts.Format != "" {
		into.Format = prompts.Format
	}
	return nil
}

const defaultClassifyPrompt = `You are an AI assistant tasked with identifying **customer-facing API changes** from the provided commit data.
Focus on changes that:
1. Modify API endpoints, request/response formats, authentication, or error handling.
2. Introduce breaking changes or deprecate existing functionality.
3. Add new API routes, parameters, or features visible to customers.

Ignore changes unrelated to API consumers, such as:
- Internal refactoring or code cleanup.
- Changes to internal tools or build processes.
- Documentation updates that don't affect API behavior.
- Non-functional changes like formatting or comments.

The user message is a JSON array of changes. Each change is a pull request or a single commit.
Return only the customer-facing ones, unchanged except for two added fields, as a JSON object:
{"apiChanges": [{"branchName": string, "prNumber": number, "prTitle": string, "prDescription": string,
  "mergedAt": RFC 3339 string, "summary": string, "breakingChange": boolean,
  "commits": [{"sha": string, "message": string, "date": RFC 3339 string,
    "files": [{"filename": string, "status": string, "changes": number}]}]}]}
"summary" is one sentence describing the change for API consumers. Every change keeps at least one commit with its sha.
Return {"apiChanges": []} when nothing is customer-facing.`

const defaultFormatPrompt = `You are an AI assistant tasked with converting API changes into a user-readable changelog format.
The users of this changelog are developers consuming the API provided by this codebase.
The changelog should follow a format similar to Stripe's changelog:
- Group changes by type: "New Features", "Bug Fixes", "Breaking Changes", "Documentation" or "Other".
- Use a clear and concise title for each change.
- Provide a brief description of the change, including any relevant details.
- Put every breaking change under "Breaking Changes".
- Include steps developers need to take to update their code if necessary.

Here are examples of how entries read:

New Features
- Support for Webhooks in API v2
  Webhooks are now supported in API v2, allowing developers to receive real-time notifications for specific events.
  Action Required: Update your integration to handle webhook events.

Bug Fixes
- Fixed Incorrect Error Codes for Payment Failures
  Resolved an issue where incorrect error codes were returned for certain payment failures.
  Action Required: No action required.

Breaking Changes
- Deprecated Legacy Authentication Method
  The legacy authentication method has been deprecated and will be removed in the next major release.
  Action Required: Migrate to the new OAuth-based authentication method before the deprecation date.

The user message is a JSON array of API changes. Answer with a JSON object:
{"sections": [{"type": one of the five types, "changes": [{"title": string, "description": string,
  "actionRequired": string, "mergedAt": RFC 3339 string, "prNumber": number, "files": [string]}]}]}
Copy prNumber and mergedAt from the change an entry describes. Use "No action required." when nothing is needed.`
