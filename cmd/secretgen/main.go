// Command secretgen prints a random signing secret suitable for
// TOKENGATE_AUTH_SECRET.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
)

func main() {
	log.SetFlags(0)
	length := flag.Int("bytes", 32, "secret length in bytes before encoding")
	flag.Parse()

	if *length < 16 {
		log.Fatal("refusing to generate a secret shorter than 16 bytes")
	}
	buf := make([]byte, *length)
	if _, err := rand.Read(buf); err != nil {
		log.Fatalf("read random: %v", err)
	}
	fmt.Println(base64.RawURLEncoding.EncodeToString(buf))
}
