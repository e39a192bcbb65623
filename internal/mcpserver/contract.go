package mcpserver

// SettingsHelp explains how to configure izy so the document tools work.
const SettingsHelp = `# izy settings

The document tools talk to a Notion workspace through an internal
integration. Until a token is stored every tool that reaches the workspace
answers with "Notion token is not configured".

## Fields

| Field        | Required | Meaning |
|--------------|----------|---------|
| notionToken  | yes      | Internal integration secret (` + "`" + `secret_...` + "`" + ` or ` + "`" + `ntn_...` + "`" + `). |
| aiKey        | no       | API key used by ` + "`" + `ask_documents` + "`" + `. Without it the tool explains how to add one. |
| relayUrl     | no       | Relay prefixed to API URLs when the workspace API is not reachable directly. Must end with ` + "`" + `/` + "`" + ` or ` + "`" + `?` + "`" + `. |
| displayName  | no       | Name shown on the dashboard. Defaults to "User". |

## Setting them

- CLI: ` + "`" + `izy settings set --notion-token secret_xxx --ai-key yyy` + "`" + `
- HTTP: ` + "`" + `PUT /api/settings` + "`" + ` with a JSON body using the field names above.

## Sharing pages

The integration only sees pages that were shared with it. A search that
returns nothing usually means the integration was not added to any page
(open the page, "..." menu, "Connections", add the integration).

## Troubleshooting

- "Invalid token": the secret was revoked or mistyped.
- "Access denied": the integration was not added to the target page.
- "Connection failed": the network or the relay is unreachable.
`
