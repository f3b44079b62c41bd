package handler

// Route type
type Route string

const (
	// RouteList list all snippets
	RouteList Route = "list"
	// RouteGet get a snippet by id
	RouteGet Route = "get"
	// RouteCreate create a snippet
	RouteCreate Route = "create"
	// RouteUpdate update a snippet
	RouteUpdate Route = "update"
	// RouteDelete delete a snippet
	RouteDelete Route = "delete"
	// RouteDuplicate copy a snippet
	RouteDuplicate Route = "duplicate"
	// RouteSearch search snippets
	RouteSearch Route = "search"
	// RouteCompletions snippets for a language
	RouteCompletions Route = "completions"
	// RouteFolders snippets grouped by folder
	RouteFolders Route = "folders"
	// RouteImport import snippets
	RouteImport Route = "import"
	// RouteExport export all snippets
	RouteExport Route = "export"
)
