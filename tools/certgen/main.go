// Command certgen writes a development certificate authority and a server
// certificate signed by it into the "certs" directory. An existing CA is
// reused so clients that already trust it keep working.
//
// Usage:
//
//	go run ./tools/certgen -dir certs -hosts localhost,127.0.0.1
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/atinyakov/casebook/internal/certgen"
)

func main() {
	dir := flag.String("dir", "certs", "output directory")
	hosts := flag.String("hosts", "localhost,127.0.0.1", "comma-separated server names and IPs")
	flag.Parse()

	var names []string
	for _, h := range strings.Split(*hosts, ",") {
		if h = strings.TrimSpace(h); h != "" {
			names = append(names, h)
		}
	}

	created, err := certgen.Bundle(*dir, names)
	if err != nil {
		log.Fatalf("certgen: %v", err)
	}
	if created {
		fmt.Printf("✅ New CA written to %s/%s\n", *dir, certgen.CACertFile)
	}
	fmt.Printf("✅ Server certificate for %s generated into ./%s\n", strings.Join(names, ", "), *dir)
}
