package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/credinor/crm-backend/internal/infra/integration/manychat"
)

// Herramienta manual para verificar credenciales y rate limit de Manychat:
//
//	go run ./cmd/manychat-check -phone +5493704123456
func main() {
	phone := flag.String("phone", "", "teléfono del subscriber a consultar")
	flag.Parse()

	godotenv.Load()

	client, err := manychat.NewClient(os.Getenv("MANYCHAT_API_KEY"))
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *phone == "" {
		log.Fatal("❌ Falta el flag -phone")
	}

	sub, err := client.GetSubscriberByPhone(ctx, *phone)
	if err != nil {
		log.Fatalf("❌ Error al consultar Manychat: %v", err)
	}
	if sub == nil {
		log.Printf("⚠️ La plataforma no conoce el teléfono %s", *phone)
		return
	}

	log.Printf("✅ Subscriber %d: %s (tags: %v)", sub.ID, sub.FullName(), sub.Tags)
	for name, value := range sub.CustomFields {
		log.Printf("   · %s = %v", name, value)
	}
}
