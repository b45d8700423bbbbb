// Command services runs the services plugin: its HTTP routes, the entity
// pipeline and the tooling around them.
//
//	@title						Services
//	@version					1.0
//	@description				Service entity routes of the CMS services plugin.
//	@BasePath					/
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token (format: "Bearer {token}")
package main

//go:generate swag init --dir ../../ --generalInfo cmd/services/main.go --output ../../docs --outputTypes go --exclude ../../_examples

func main() {
	Execute()
}
