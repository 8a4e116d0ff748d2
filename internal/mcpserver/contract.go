package mcpserver

// RecordFormatContract describes how records are named and laid out, for
// LLM consumers that create or update them.
const RecordFormatContract = `# Record Format

Records live in folders under the store's base directory. A folder may be
nested (` + "`" + `projA/sprint1` + "`" + `); it is created on the first create.

## Kinds

| file_type | stored as                       | default extension |
|-----------|---------------------------------|-------------------|
| img       | bytes copied from a source path | source extension  |
| script    | text                            | script_ext or .txt |
| info      | text                            | .txt              |
| task      | optional status line + text     | .txt              |

` + "`" + `image` + "`" + ` is accepted as an alias of ` + "`" + `img` + "`" + `. Images must be png, jpg or jpeg.
Use the ` + "`" + `upload_image` + "`" + ` tool to store an image from a base64 data URI.

## Naming

Pass ` + "`" + `filename` + "`" + ` to choose the name. A filename without an extension gets the
kind's default. Without a filename all four of ` + "`" + `autor` + "`" + `, ` + "`" + `data` + "`" + `, ` + "`" + `titulo` + "`" + `,
` + "`" + `tipo` + "`" + ` are required and the name becomes:

    {autor}_{data}_{titulo}_{tipo}{ext}

Creating a record whose name already exists overwrites it.

## Task status

A task's status is the first line of the file:

    STATUS: pending
    implement login

An update with a new status prepends a fresh status line. When the update
carries no content the old body (including its old status line) is kept, so
the file then starts with two status lines. Send the content again to
replace the status cleanly.

## Paths

Folder and file names are relative. Absolute paths and ` + "`" + `..` + "`" + ` segments are
rejected.
`
