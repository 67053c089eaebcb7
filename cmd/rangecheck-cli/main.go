// Command rangecheck-cli provides CLI tools for interacting with a deployed
// range check gateway.
//
// # Commands
//
// check: Submit an encrypted value for a range check.
//
//	rangecheck-cli check --gateway=http://localhost:8080 --value=42
//
// status: Display the governed interval, owner and shared result slot.
//
//	rangecheck-cli status --gateway=http://localhost:8080
//
// decrypt: Decrypt a result handle, privately or after publication.
//
//	rangecheck-cli decrypt --handle=<hex> --key=<hex>
//
// set-bounds, transfer-ownership: Owner-signed governance operations.
// publish: Make the shared result slot publicly decryptable.
// events: List the append-only service log.
// keygen: Generate signing or response key pairs.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sealbit/rangecheck/cmd/common"
	"github.com/sealbit/rangecheck/crypto"
	"github.com/sealbit/rangecheck/eventlog"
	"github.com/sealbit/rangecheck/fhe"
	"github.com/sealbit/rangecheck/gateway"
)

const defaultGateway = "http://localhost:8080"

// defaultDemoSeed matches rangecheckd's default mock backend seed, so the
// CLI's locally produced ciphertexts and proofs are accepted by a freshly
// started daemon.
const defaultDemoSeed = "rangecheck-demo"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "check":
		err = runCheck(args)
	case "status":
		err = runStatus(args)
	case "decrypt":
		err = runDecrypt(args)
	case "publish":
		err = runPublish(args)
	case "set-bounds":
		err = runSetBounds(args)
	case "transfer-ownership":
		err = runTransferOwnership(args)
	case "events":
		err = runEvents(args)
	case "keygen":
		err = runKeygen(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`rangecheck-cli - CLI tools for the range check gateway

Usage:
  rangecheck-cli <command> [options]

Commands:
  check               Submit an encrypted value for a range check
  status              Display bounds, owner and the result slot
  decrypt             Decrypt a result handle
  publish             Make the result slot publicly decryptable
  set-bounds          Replace the governed interval (owner)
  transfer-ownership  Hand governance to a new owner (owner)
  events              List the service event log
  keygen              Generate key pairs

Run 'rangecheck-cli <command> --help' for command-specific options.`)
}

// --- Check Command ---

func runCheck(args []string) error {
	var (
		gatewayURL string
		keyHex     string
		seed       string
		value      uint
		lower      uint
		upper      uint
		boundsSet  bool
		decrypt    bool
		valueSet   bool
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway", "-g":
			i++
			if i < len(args) {
				gatewayURL = args[i]
			}
		case "--value", "-v":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &value)
				valueSet = true
			}
		case "--key", "-k":
			i++
			if i < len(args) {
				keyHex = args[i]
			}
		case "--seed":
			i++
			if i < len(args) {
				seed = args[i]
			}
		case "--lower":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &lower)
				boundsSet = true
			}
		case "--upper":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &upper)
			}
		case "--decrypt", "-d":
			decrypt = true
		case "--help", "-h":
			printCheckHelp()
			return nil
		}
	}

	if gatewayURL == "" {
		gatewayURL = defaultGateway
	}
	if seed == "" {
		seed = defaultDemoSeed
	}
	if !valueSet {
		return fmt.Errorf("--value is required")
	}

	signingKey, err := common.LoadOrGenerateSigningKey(keyHex)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	pubkey, err := signingKey.PublicKey()
	if err != nil {
		return err
	}
	if keyHex == "" {
		fmt.Printf("Generated signing key: %s\n", hex.EncodeToString(signingKey))
		fmt.Println("Keep it to decrypt the verdict later.")
	}

	// Encrypt locally against the deployment's coprocessor keys; only
	// the ciphertext and proof travel to the gateway.
	backend, err := fhe.NewDemoCoprocessor([]byte(seed))
	if err != nil {
		return fmt.Errorf("coprocessor keys: %w", err)
	}
	ciphertext, handle, err := backend.Encrypt(uint32(value))
	if err != nil {
		return fmt.Errorf("encrypting value: %w", err)
	}
	proof, err := backend.ProveInput(ciphertext, pubkey)
	if err != nil {
		return fmt.Errorf("proving input: %w", err)
	}

	var data []byte
	if boundsSet {
		fmt.Printf("Checking encrypted value against [%d, %d)...\n", lower, upper)
		data, err = postSigned(gatewayURL, "/api/check-with-bounds", signingKey, &gateway.CheckWithBoundsRequest{
			Handle:    handle,
			Lower:     uint32(lower),
			Upper:     uint32(upper),
			Proof:     proof,
			Timestamp: time.Now().Unix(),
		})
	} else {
		fmt.Println("Checking encrypted value against the governed interval...")
		data, err = postSigned(gatewayURL, "/api/check", signingKey, &gateway.CheckRequest{
			Handle:    handle,
			Proof:     proof,
			Timestamp: time.Now().Unix(),
		})
	}
	if err != nil {
		return err
	}

	var check gateway.CheckResponse
	if err := json.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Printf("Result handle: %s\n", check.ResultHandle)

	if !decrypt {
		fmt.Println("Run 'rangecheck-cli decrypt --handle=<handle> --key=<key>' to open the verdict.")
		return nil
	}
	return decryptPrivately(gatewayURL, signingKey, check.ResultHandle, "")
}

func printCheckHelp() {
	fmt.Println(`rangecheck-cli check - Submit an encrypted value for a range check

Usage:
  rangecheck-cli check --value=<n> [options]

Options:
  --gateway, -g   Gateway URL (default: http://localhost:8080)
  --value, -v     Value to encrypt and check (required)
  --key, -k       Ed25519 signing key (hex, generates if empty)
  --seed          Coprocessor demo seed (default: rangecheck-demo)
  --lower         Check against a one-off lower bound (with --upper)
  --upper         Check against a one-off upper bound (with --lower)
  --decrypt, -d   Immediately decrypt the verdict

Examples:
  rangecheck-cli check -v 42 -d
  rangecheck-cli check -v 42 --lower=100 --upper=200 -k a1b2c3...`)
}

// --- Status Command ---

func runStatus(args []string) error {
	var gatewayURL string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway", "-g":
			i++
			if i < len(args) {
				gatewayURL = args[i]
			}
		case "--help", "-h":
			printStatusHelp()
			return nil
		}
	}

	if gatewayURL == "" {
		gatewayURL = defaultGateway
	}

	var version gateway.VersionResponse
	if err := getAPI(gatewayURL, "/api/version", &version); err != nil {
		return fmt.Errorf("fetch version: %w", err)
	}
	var bounds gateway.BoundsResponse
	if err := getAPI(gatewayURL, "/api/bounds", &bounds); err != nil {
		return fmt.Errorf("fetch bounds: %w", err)
	}
	var last gateway.LastResultResponse
	if err := getAPI(gatewayURL, "/api/last-result", &last); err != nil {
		return fmt.Errorf("fetch last result: %w", err)
	}

	fmt.Printf("Gateway: %s\n", gatewayURL)
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Interval: [%d, %d)\n", bounds.Lower, bounds.Upper)
	fmt.Printf("Owner: %s\n", bounds.Owner)
	if last.ResultHandle == "" {
		fmt.Println("Result slot: empty")
	} else {
		fmt.Printf("Result slot: %s\n", last.ResultHandle)
	}
	return nil
}

func printStatusHelp() {
	fmt.Println(`rangecheck-cli status - Display bounds, owner and the result slot

Usage:
  rangecheck-cli status [--gateway=<url>]`)
}

// --- Decrypt Command ---

func runDecrypt(args []string) error {
	var (
		gatewayURL     string
		keyHex         string
		handleHex      string
		responseKeyHex string
		public         bool
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway", "-g":
			i++
			if i < len(args) {
				gatewayURL = args[i]
			}
		case "--key", "-k":
			i++
			if i < len(args) {
				keyHex = args[i]
			}
		case "--handle":
			i++
			if i < len(args) {
				handleHex = args[i]
			}
		case "--response-key":
			i++
			if i < len(args) {
				responseKeyHex = args[i]
			}
		case "--public":
			public = true
		case "--help", "-h":
			printDecryptHelp()
			return nil
		}
	}

	if gatewayURL == "" {
		gatewayURL = defaultGateway
	}
	if handleHex == "" {
		return fmt.Errorf("--handle is required")
	}

	handle, err := fhe.NewHandleFromString(handleHex)
	if err != nil {
		return fmt.Errorf("invalid handle: %w", err)
	}

	if public {
		data, err := postJSON(gatewayURL, "/api/decrypt/public", &gateway.PublicDecryptRequest{Handle: handle})
		if err != nil {
			return err
		}
		var resp gateway.PublicDecryptResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		printPlaintext(resp.Plaintext)
		return nil
	}

	if keyHex == "" {
		return fmt.Errorf("--key is required for private decryption")
	}
	signingKey, err := common.LoadOrGenerateSigningKey(keyHex)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	return decryptPrivately(gatewayURL, signingKey, handle, responseKeyHex)
}

func printDecryptHelp() {
	fmt.Println(`rangecheck-cli decrypt - Decrypt a result handle

Usage:
  rangecheck-cli decrypt --handle=<hex> --key=<hex>
  rangecheck-cli decrypt --handle=<hex> --public

Options:
  --gateway, -g    Gateway URL (default: http://localhost:8080)
  --handle         Result handle to decrypt (required)
  --key, -k        Ed25519 signing key of an allowed principal (hex)
  --response-key   ECDH P-256 key for the response (hex, generates if empty)
  --public         Use public decryption (after publish)`)
}

// decryptPrivately requests a private decryption: the verdict comes back
// encrypted to an ephemeral response key only this process holds.
func decryptPrivately(gatewayURL string, signingKey crypto.PrivateKey, handle fhe.Handle, responseKeyHex string) error {
	responseKey, err := common.LoadOrGenerateResponseKey(responseKeyHex)
	if err != nil {
		return fmt.Errorf("response key: %w", err)
	}

	data, err := postSigned(gatewayURL, "/api/decrypt", signingKey, &gateway.DecryptRequest{
		Handle:      handle,
		ResponseKey: responseKey.PublicKey().Bytes(),
		Timestamp:   time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	var resp gateway.DecryptResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	encrypted, err := crypto.ParseEncryptedMessage(resp.EncryptedResult)
	if err != nil {
		return fmt.Errorf("parsing encrypted result: %w", err)
	}
	plainBody, err := crypto.Decrypt(responseKey, encrypted)
	if err != nil {
		return fmt.Errorf("opening encrypted result: %w", err)
	}

	var plaintext fhe.Plaintext
	if err := json.Unmarshal(plainBody, &plaintext); err != nil {
		return fmt.Errorf("decoding plaintext: %w", err)
	}
	printPlaintext(&plaintext)
	return nil
}

func printPlaintext(plaintext *fhe.Plaintext) {
	if plaintext == nil {
		fmt.Println("No plaintext returned")
		return
	}
	switch plaintext.Type {
	case fhe.TypeBool:
		if plaintext.Bool() {
			fmt.Println("Verdict: IN RANGE")
		} else {
			fmt.Println("Verdict: OUT OF RANGE")
		}
	default:
		fmt.Printf("Value: %d\n", plaintext.Uint32())
	}
}

// --- Publish Command ---

func runPublish(args []string) error {
	var (
		gatewayURL string
		keyHex     string
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway", "-g":
			i++
			if i < len(args) {
				gatewayURL = args[i]
			}
		case "--key", "-k":
			i++
			if i < len(args) {
				keyHex = args[i]
			}
		case "--help", "-h":
			printPublishHelp()
			return nil
		}
	}

	if gatewayURL == "" {
		gatewayURL = defaultGateway
	}

	signingKey, err := common.LoadOrGenerateSigningKey(keyHex)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}

	data, err := postSigned(gatewayURL, "/api/last-result/publish", signingKey, &gateway.PublishRequest{
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	var last gateway.LastResultResponse
	if err := json.Unmarshal(data, &last); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Printf("Published result handle: %s\n", last.ResultHandle)
	fmt.Println("Anyone can now decrypt it with 'rangecheck-cli decrypt --public'.")
	return nil
}

func printPublishHelp() {
	fmt.Println(`rangecheck-cli publish - Make the shared result slot publicly decryptable

The slot is shared; any principal may publish whatever verdict it
currently holds, and publication cannot be undone.

Usage:
  rangecheck-cli publish [--gateway=<url>] [--key=<hex>]`)
}

// --- Set-Bounds Command ---

func runSetBounds(args []string) error {
	var (
		gatewayURL string
		keyHex     string
		lower      uint
		upper      uint
		lowerSet   bool
		upperSet   bool
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway", "-g":
			i++
			if i < len(args) {
				gatewayURL = args[i]
			}
		case "--key", "-k":
			i++
			if i < len(args) {
				keyHex = args[i]
			}
		case "--lower":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &lower)
				lowerSet = true
			}
		case "--upper":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &upper)
				upperSet = true
			}
		case "--help", "-h":
			printSetBoundsHelp()
			return nil
		}
	}

	if gatewayURL == "" {
		gatewayURL = defaultGateway
	}
	if keyHex == "" {
		return fmt.Errorf("--key is required (the owner's signing key)")
	}
	if !lowerSet || !upperSet {
		return fmt.Errorf("--lower and --upper are required")
	}

	signingKey, err := common.LoadOrGenerateSigningKey(keyHex)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}

	data, err := postSigned(gatewayURL, "/admin/bounds", signingKey, &gateway.SetBoundsRequest{
		Lower:     uint32(lower),
		Upper:     uint32(upper),
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	var state gateway.BoundsResponse
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Printf("Interval updated to [%d, %d)\n", state.Lower, state.Upper)
	return nil
}

func printSetBoundsHelp() {
	fmt.Println(`rangecheck-cli set-bounds - Replace the governed interval (owner only)

Usage:
  rangecheck-cli set-bounds --key=<owner-hex> --lower=<n> --upper=<m>

The interval is half-open: lower is inclusive, upper exclusive, and
lower must be strictly below upper.`)
}

// --- Transfer-Ownership Command ---

func runTransferOwnership(args []string) error {
	var (
		gatewayURL  string
		keyHex      string
		newOwnerHex string
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway", "-g":
			i++
			if i < len(args) {
				gatewayURL = args[i]
			}
		case "--key", "-k":
			i++
			if i < len(args) {
				keyHex = args[i]
			}
		case "--new-owner":
			i++
			if i < len(args) {
				newOwnerHex = args[i]
			}
		case "--help", "-h":
			printTransferOwnershipHelp()
			return nil
		}
	}

	if gatewayURL == "" {
		gatewayURL = defaultGateway
	}
	if keyHex == "" {
		return fmt.Errorf("--key is required (the current owner's signing key)")
	}
	if newOwnerHex == "" {
		return fmt.Errorf("--new-owner is required")
	}

	signingKey, err := common.LoadOrGenerateSigningKey(keyHex)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	newOwner, err := crypto.NewPublicKeyFromString(newOwnerHex)
	if err != nil {
		return fmt.Errorf("invalid new owner key: %w", err)
	}

	data, err := postSigned(gatewayURL, "/admin/transfer-ownership", signingKey, &gateway.TransferOwnershipRequest{
		NewOwner:  newOwner,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	var state gateway.BoundsResponse
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	fmt.Printf("Ownership transferred to %s\n", state.Owner)
	return nil
}

func printTransferOwnershipHelp() {
	fmt.Println(`rangecheck-cli transfer-ownership - Hand governance to a new owner

Usage:
  rangecheck-cli transfer-ownership --key=<owner-hex> --new-owner=<pubkey-hex>

The transfer is immediate: the previous owner loses all governance
rights with this call.`)
}

// --- Events Command ---

func runEvents(args []string) error {
	var (
		gatewayURL string
		after      uint
		limit      uint
		asJSON     bool
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--gateway", "-g":
			i++
			if i < len(args) {
				gatewayURL = args[i]
			}
		case "--after":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &after)
			}
		case "--limit":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &limit)
			}
		case "--json":
			asJSON = true
		case "--help", "-h":
			printEventsHelp()
			return nil
		}
	}

	if gatewayURL == "" {
		gatewayURL = defaultGateway
	}

	path := fmt.Sprintf("/api/events?after=%d", after)
	if limit > 0 {
		path += fmt.Sprintf("&limit=%d", limit)
	}

	var events gateway.EventsResponse
	if err := getAPI(gatewayURL, path, &events); err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events.Events)
	}

	if len(events.Events) == 0 {
		fmt.Println("No events")
		return nil
	}
	for _, event := range events.Events {
		printEvent(event)
	}
	return nil
}

func printEvent(event *eventlog.Event) {
	when := event.Time.Format(time.RFC3339)
	switch event.Kind {
	case eventlog.KindBoundsUpdated:
		fmt.Printf("[%d] %s bounds updated to [%d, %d)\n", event.Seq, when, event.Lower, event.Upper)
	case eventlog.KindRangeChecked:
		fmt.Printf("[%d] %s range checked by %s against [%d, %d) result=%s\n",
			event.Seq, when, event.Caller, event.Lower, event.Upper, event.ResultHandle)
	case eventlog.KindOwnershipTransferred:
		fmt.Printf("[%d] %s ownership transferred %s -> %s\n",
			event.Seq, when, event.PreviousOwner, event.NewOwner)
	default:
		fmt.Printf("[%d] %s %s\n", event.Seq, when, event.Kind)
	}
}

func printEventsHelp() {
	fmt.Println(`rangecheck-cli events - List the append-only service log

Usage:
  rangecheck-cli events [options]

Options:
  --gateway, -g   Gateway URL (default: http://localhost:8080)
  --after         Only events with sequence numbers above this
  --limit         At most this many events
  --json          Raw JSON output`)
}

// --- Keygen Command ---

func runKeygen(args []string) error {
	var response bool

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--response":
			response = true
		case "--help", "-h":
			printKeygenHelp()
			return nil
		}
	}

	if response {
		key, err := common.LoadOrGenerateResponseKey("")
		if err != nil {
			return err
		}
		fmt.Printf("Response private key: %s\n", hex.EncodeToString(key.Bytes()))
		fmt.Printf("Response public key:  %s\n", hex.EncodeToString(key.PublicKey().Bytes()))
		return nil
	}

	pubKey, privKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	fmt.Printf("Signing private key: %s\n", hex.EncodeToString(privKey))
	fmt.Printf("Public key:          %s\n", pubKey.String())
	return nil
}

func printKeygenHelp() {
	fmt.Println(`rangecheck-cli keygen - Generate key pairs

Usage:
  rangecheck-cli keygen             Ed25519 signing key pair
  rangecheck-cli keygen --response  ECDH P-256 response key pair`)
}

// --- Shared Utilities ---

func postSigned[T any](gatewayURL, path string, key crypto.PrivateKey, obj *T) ([]byte, error) {
	signed, err := crypto.NewSigned(key, obj)
	if err != nil {
		return nil, fmt.Errorf("signing request: %w", err)
	}
	body, err := json.Marshal(signed)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return doPost(gatewayURL+path, body)
}

func postJSON(gatewayURL, path string, obj interface{}) ([]byte, error) {
	body, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return doPost(gatewayURL+path, body)
}

func doPost(url string, body []byte) ([]byte, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	resp, err := httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return readAPIResponse(resp)
}

func getAPI(gatewayURL, path string, out interface{}) error {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	resp, err := httpClient.Get(gatewayURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := readAPIResponse(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// readAPIResponse surfaces the gateway's error kind and message on
// non-200 responses.
func readAPIResponse(resp *http.Response) ([]byte, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr gateway.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("gateway refused (%s): %s", apiErr.Kind, apiErr.Error)
		}
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return data, nil
}
