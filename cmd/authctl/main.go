// authctl is the operator CLI for the auth service: seeding the admin account, managing the client
// version registry and runtime settings, running the reaper, and revoking sessions.
package main

import "helpdesk-auth/backend/cmd/authctl/cmd"

func main() {
	cmd.Execute()
}
