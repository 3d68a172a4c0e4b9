package main

import "github.com/freekieb7/grafana-provisioner/cmd/provisioner"

func main() {
	provisioner.Cli()
}
