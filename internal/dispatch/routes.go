package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/angelmondragon/mangopay-gateway/internal/rpc"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
)

// Route maps positional arguments onto one processor REST call.
//
// IDs lists the argument positions filling the %s verbs of Path in order.
// When BodyID is set the body's Id fills the last verb instead. Body is the
// position of the JSON body or -1. Resolve picks the path from the body for
// calls whose endpoint depends on the payload type.
type Route struct {
	Verb    string
	Path    string
	IDs     []int
	Body    int
	BodyID  bool
	Resolve func(body map[string]any) (string, error)
}

// arity is the number of positional arguments consumed before the optional
// trailing options object.
func (r Route) arity() int {
	n := len(r.IDs)
	if r.Body >= 0 && r.Body+1 > n {
		n = r.Body + 1
	}
	return n
}

func get(path string, ids ...int) Route {
	return Route{Verb: http.MethodGet, Path: path, IDs: ids, Body: -1}
}

func post(path string, body int, ids ...int) Route {
	return Route{Verb: http.MethodPost, Path: path, IDs: ids, Body: body}
}

// put updates the object whose Id is carried by the body at position body.
func put(path string, body int, ids ...int) Route {
	return Route{Verb: http.MethodPut, Path: path, IDs: ids, Body: body, BodyID: true}
}

func resolved(body int, ids []int, fn func(map[string]any) (string, error)) Route {
	return Route{Verb: http.MethodPost, IDs: ids, Body: body, Resolve: fn}
}

func defaultRoutes() map[string]Route {
	return map[string]Route{
		"Users.create":            resolved(0, nil, userCreatePath),
		"Users.get":               get("/users/%s", 0),
		"Users.getAll":            get("/users"),
		"Users.update":            {Verb: http.MethodPut, Body: 0, BodyID: true, Resolve: userUpdatePath},
		"Users.getWallets":        get("/users/%s/wallets", 0),
		"Users.getTransactions":   get("/users/%s/transactions", 0),
		"Users.getCards":          get("/users/%s/cards", 0),
		"Users.createBankAccount": resolved(1, []int{0}, bankAccountPath),
		"Users.getBankAccount":    get("/users/%s/bankaccounts/%s", 0, 1),
		"Users.getBankAccounts":   get("/users/%s/bankaccounts", 0),
		"Users.createKycDocument": post("/users/%s/kyc/documents", 1, 0),
		"Users.getKycDocuments":   get("/users/%s/kyc/documents", 0),
		"Users.getKycDocument":    get("/users/%s/kyc/documents/%s", 0, 1),
		"Users.updateKycDocument": put("/users/%s/kyc/documents/%s", 1, 0),
		"Users.createKycPage":     post("/users/%s/kyc/documents/%s/pages", 2, 0, 1),
		"Users.getEMoney":         get("/users/%s/emoney", 0),

		"UboDeclarations.create":    post("/users/%s/kyc/ubodeclarations", -1, 0),
		"UboDeclarations.get":       get("/users/%s/kyc/ubodeclarations/%s", 0, 1),
		"UboDeclarations.getAll":    get("/users/%s/kyc/ubodeclarations", 0),
		"UboDeclarations.update":    put("/users/%s/kyc/ubodeclarations/%s", 1, 0),
		"UboDeclarations.createUbo": post("/users/%s/kyc/ubodeclarations/%s/ubos", 2, 0, 1),
		"UboDeclarations.getUbo":    get("/users/%s/kyc/ubodeclarations/%s/ubos/%s", 0, 1, 2),
		"UboDeclarations.updateUbo": put("/users/%s/kyc/ubodeclarations/%s/ubos/%s", 2, 0, 1),

		"CardRegistrations.create": post("/cardregistrations", 0),
		"CardRegistrations.get":    get("/cardregistrations/%s", 0),
		"CardRegistrations.update": put("/cardregistrations/%s", 0),

		"Cards.get":                  get("/cards/%s", 0),
		"Cards.update":               put("/cards/%s", 0),
		"Cards.getTransactions":      get("/cards/%s/transactions", 0),
		"Cards.getPreAuthorizations": get("/cards/%s/preauthorizations", 0),
		"Cards.validate":             post("/cards/%s/validation", 1, 0),

		"CardPreAuthorizations.create": post("/preauthorizations/card/direct", 0),
		"CardPreAuthorizations.get":    get("/preauthorizations/%s", 0),
		"CardPreAuthorizations.update": put("/preauthorizations/%s", 0),

		"Wallets.create":          post("/wallets", 0),
		"Wallets.get":             get("/wallets/%s", 0),
		"Wallets.update":          put("/wallets/%s", 0),
		"Wallets.getTransactions": get("/wallets/%s/transactions", 0),

		"PayIns.create":       resolved(0, nil, payInCreatePath),
		"PayIns.get":          get("/payins/%s", 0),
		"PayIns.createRefund": post("/payins/%s/refunds", 1, 0),
		"PayIns.getRefunds":   get("/payins/%s/refunds", 0),

		"PayOuts.create": post("/payouts/bankwire", 0),
		"PayOuts.get":    get("/payouts/%s", 0),

		"Transfers.create":       post("/transfers", 0),
		"Transfers.get":          get("/transfers/%s", 0),
		"Transfers.createRefund": post("/transfers/%s/refunds", 1, 0),
		"Transfers.getRefunds":   get("/transfers/%s/refunds", 0),

		"Refunds.get": get("/refunds/%s", 0),

		"Events.getAll": get("/events"),
	}
}

func stringField(body map[string]any, key string) string {
	value, _ := body[key].(string)
	return strings.TrimSpace(value)
}

func userCreatePath(body map[string]any) (string, error) {
	switch strings.ToUpper(stringField(body, "PersonType")) {
	case mangopay.PersonNatural:
		return "/users/natural", nil
	case mangopay.PersonLegal:
		return "/users/legal", nil
	default:
		return "", rpc.BadArgs("PersonType must be NATURAL or LEGAL")
	}
}

func userUpdatePath(body map[string]any) (string, error) {
	path, err := userCreatePath(body)
	if err != nil {
		return "", err
	}
	return path + "/%s", nil
}

func bankAccountPath(body map[string]any) (string, error) {
	kind := strings.ToLower(stringField(body, "Type"))
	switch kind {
	case "iban", "gb", "us", "ca", "other":
		return "/users/%s/bankaccounts/" + kind, nil
	default:
		return "", rpc.BadArgs("unsupported bank account Type")
	}
}

var payInPaths = map[string]string{
	"CARD/DIRECT":          "/payins/card/direct",
	"CARD/WEB":             "/payins/card/web",
	"PREAUTHORIZED/DIRECT": "/payins/PreAuthorized/direct",
	"BANK_WIRE/DIRECT":     "/payins/bankwire/direct",
}

func payInCreatePath(body map[string]any) (string, error) {
	key := strings.ToUpper(stringField(body, "PaymentType")) + "/" + strings.ToUpper(stringField(body, "ExecutionType"))
	path, ok := payInPaths[key]
	if !ok {
		return "", rpc.BadArgs(fmt.Sprintf("unsupported pay-in %s", key))
	}
	return path, nil
}

// bodyID reads the Id of an update body in the processor's string form.
func bodyID(body map[string]any) (string, error) {
	raw, ok := body["Id"]
	if !ok {
		return "", rpc.BadArgs("body Id is required")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return "", rpc.BadArgs("body Id is required")
	}
	id, err := mangopay.IDFromJSON(encoded)
	if err != nil {
		return "", rpc.BadArgs("body Id is required")
	}
	return id.String(), nil
}
