package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
	"github.com/gotd/td/session"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tg"
	"github.com/mdp/qrterminal/v3"

	"github.com/sunil55999/Zorox/internal/telegram"
)

func main() {
	fmt.Println("=== telegram auth tool ===")
	fmt.Println("this tool generates a session string for a listener or sender account")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	apiID, apiHash := getAPICredentials(reader)

	fmt.Println("choose authentication method:")
	fmt.Println("  1. phone number (sms/code)")
	fmt.Println("  2. qr code (scan with the telegram app)")
	fmt.Print("\nenter choice [1]: ")
	choice, _ := reader.ReadString('\n')

	var sessionString string
	var err error
	if strings.TrimSpace(choice) == "2" {
		sessionString, err = authWithQR(apiID, apiHash)
	} else {
		sessionString, err = authWithPhone(apiID, apiHash, reader)
	}
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n✓ authentication successful!")
	fmt.Println("\nyour session string:")
	fmt.Println("---")
	fmt.Println(sessionString)
	fmt.Println("---")
	fmt.Println("\nuse it as TG_SESSION_STRING for the listener,")
	fmt.Println("or as the credential when adding a sender")
	fmt.Println("\n⚠️  keep this secret! it provides full access to the telegram account")
}

// getAPICredentials reads API ID and Hash from env or prompts user
func getAPICredentials(reader *bufio.Reader) (int, string) {
	apiIDStr := os.Getenv("TG_API_ID")
	apiHash := os.Getenv("TG_API_HASH")

	if apiIDStr == "" {
		fmt.Print("enter your api_id (from https://my.telegram.org): ")
		apiIDStr, _ = reader.ReadString('\n')
		apiIDStr = strings.TrimSpace(apiIDStr)
	}
	if apiHash == "" {
		fmt.Print("enter your api_hash: ")
		apiHash, _ = reader.ReadString('\n')
		apiHash = strings.TrimSpace(apiHash)
	}

	apiID, err := strconv.Atoi(apiIDStr)
	if err != nil {
		fmt.Printf("error: invalid api_id: %v\n", err)
		os.Exit(1)
	}

	return apiID, apiHash
}

// authWithPhone authenticates using phone number (SMS/code)
func authWithPhone(apiID int, apiHash string, reader *bufio.Reader) (string, error) {
	fmt.Print("enter your phone number (with country code, e.g. +1234567890): ")
	phone, _ := reader.ReadString('\n')
	phone = strings.TrimSpace(phone)

	fmt.Println("\nauthenticating... (check telegram for code)")

	client, err := gotgproto.NewClient(
		apiID,
		apiHash,
		gotgproto.ClientTypePhone(phone),
		&gotgproto.ClientOpts{
			Session:          sessionMaker.SqlSession(sqlite.Open("tg_session")),
			DisableCopyright: true,
		},
	)
	if err != nil {
		return "", err
	}
	defer client.Stop()

	if client.Self != nil {
		fmt.Printf("logged in as: @%s\n", client.Self.Username)
	}
	return client.ExportStringSession()
}

// authWithQR runs the QR login flow on a raw gotd client and exports the
// resulting session.
func authWithQR(apiID int, apiHash string) (string, error) {
	ctx := context.Background()

	storage := &session.StorageMemory{}
	d := tg.NewUpdateDispatcher()
	client := gotdtelegram.NewClient(apiID, apiHash, gotdtelegram.Options{
		SessionStorage: storage,
		UpdateHandler:  d,
	})

	var sessionString string
	err := client.Run(ctx, func(ctx context.Context) error {
		qr := qrlogin.NewQR(client.API(), apiID, apiHash, qrlogin.Options{
			Migrate: client.MigrateTo,
		})

		loggedIn := qrlogin.OnLoginToken(d)
		_, err := qr.Auth(ctx, loggedIn, func(ctx context.Context, token qrlogin.Token) error {
			fmt.Println("\nscan this qr code with telegram (settings → devices → link desktop device):")
			qrterminal.GenerateHalfBlock(token.URL(), qrterminal.L, os.Stdout)
			return nil
		})
		if err != nil {
			return err
		}

		data, err := storage.LoadSession(ctx)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if len(data) == 0 {
			return fmt.Errorf("empty session storage")
		}
		var stored struct {
			Data session.Data `json:"Data"`
		}
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		sessionString, err = telegram.EncodeSessionString(&stored.Data)
		return err
	})
	if err != nil {
		return "", err
	}
	return sessionString, nil
}
