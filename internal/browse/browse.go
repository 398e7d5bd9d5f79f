// Package browse is a line-oriented terminal storefront over the catalog, the
// cart ledger and the optimistic coordinator.
package browse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fairyhunter13/storefront/internal/cart"
	"github.com/fairyhunter13/storefront/internal/catalog"
	"github.com/fairyhunter13/storefront/internal/debounce"
	"github.com/fairyhunter13/storefront/internal/obs"
	"github.com/fairyhunter13/storefront/internal/optimistic"
)

// ErrQuit is returned by Exec for the quit command.
var ErrQuit = errors.New("browse: quit")

const helpText = `commands:
  search <text>            filter by title (applied after typing pauses)
  category <slug|all>      filter by category
  sort <title|price|rating> [asc|desc]
  page <n>                 jump to a listing page
  list                     show the current listing
  show <id>                product details
  add <id>                 add one unit to the cart
  qty <id> <n>             set a cart quantity (0 removes)
  rm <id>                  remove a cart line
  clear                    empty the cart
  cart                     show the cart
  categories               list categories
  help                     this text
  quit                     leave
`

// Browser holds the listing state of one terminal session.
type Browser struct {
	cat    *catalog.Catalog
	ledger *cart.Ledger
	co     *optimistic.Coordinator

	// mu guards out, query and ctx. Debounced searches and settle
	// notifications write from their own goroutines.
	mu         sync.Mutex
	out        io.Writer
	query      catalog.Query
	totalPages int
	ctx        context.Context

	search *debounce.Debouncer[string]
}

// New returns a Browser writing to out. Search input is applied once it has
// been quiet for searchDelay.
func New(cat *catalog.Catalog, l *cart.Ledger, co *optimistic.Coordinator, out io.Writer, searchDelay time.Duration) *Browser {
	b := &Browser{
		cat:    cat,
		ledger: l,
		co:     co,
		out:    out,
		query:  catalog.DefaultQuery(cat.PageSize()),
		ctx:    context.Background(),
	}
	b.search = debounce.New(searchDelay, b.applySearch)
	return b
}

// Run reads commands from in until quit, EOF or ctx is done.
func (b *Browser) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()
	defer b.search.Stop()

	b.printf("storefront: type help for commands\n")
	b.renderListing(ctx)

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			b.search.Flush()
			return err
		case line := <-lines:
			if err := b.Exec(ctx, line); errors.Is(err, ErrQuit) {
				return nil
			}
		}
	}
}

// Query returns the current listing query.
func (b *Browser) Query() catalog.Query {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query
}

// Exec runs one command line. Unknown commands and bad arguments are reported
// on the output and return nil.
func (b *Browser) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	if cmd == "search" {
		// Keep inner spacing of the typed text.
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		b.search.Trigger(text)
		return nil
	}
	b.search.Flush()

	switch cmd {
	case "category":
		if len(args) != 1 {
			return b.usage("category <slug|all>")
		}
		slug := args[0]
		if slug == "all" {
			slug = ""
		}
		b.setQuery(func(q catalog.Query) catalog.Query { return q.WithFilters(q.Search, slug, q.SortBy, q.Order) })
		b.renderListing(ctx)
	case "sort":
		if len(args) < 1 || len(args) > 2 {
			return b.usage("sort <title|price|rating> [asc|desc]")
		}
		order := catalog.OrderAsc
		if len(args) == 2 {
			order = strings.ToLower(args[1])
		}
		b.setQuery(func(q catalog.Query) catalog.Query {
			return q.WithFilters(q.Search, q.Category, strings.ToLower(args[0]), order)
		})
		b.renderListing(ctx)
	case "page":
		n, ok := b.intArg(args, 0, "page <n>")
		if !ok {
			return nil
		}
		b.setQuery(func(q catalog.Query) catalog.Query {
			if b.totalPages > 0 && n > b.totalPages {
				n = b.totalPages
			}
			q.Page = n
			return q.Normalize()
		})
		b.renderListing(ctx)
	case "list":
		b.renderListing(ctx)
	case "show":
		id, ok := b.intArg(args, 0, "show <id>")
		if !ok {
			return nil
		}
		b.show(ctx, id)
	case "add":
		id, ok := b.intArg(args, 0, "add <id>")
		if !ok {
			return nil
		}
		b.add(ctx, id)
	case "qty":
		if len(args) != 2 {
			return b.usage("qty <id> <n>")
		}
		id, ok := b.intArg(args, 0, "qty <id> <n>")
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return b.usage("qty <id> <n>")
		}
		if _, ok := b.ledger.Quantity(id); !ok {
			b.printf("product %d is not in the cart\n", id)
			return nil
		}
		b.ledger.UpdateQuantity(id, n)
		b.renderCart()
	case "rm":
		id, ok := b.intArg(args, 0, "rm <id>")
		if !ok {
			return nil
		}
		b.ledger.RemoveFromCart(id)
		b.renderCart()
	case "clear":
		b.ledger.ClearCart()
		b.renderCart()
	case "cart":
		b.renderCart()
	case "categories":
		b.renderCategories(ctx)
	case "help":
		b.printf("%s", helpText)
	case "quit", "exit":
		return ErrQuit
	default:
		b.printf("unknown command %q, type help\n", cmd)
	}
	return nil
}

func (b *Browser) applySearch(text string) {
	b.setQuery(func(q catalog.Query) catalog.Query { return q.WithFilters(text, q.Category, q.SortBy, q.Order) })
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()
	b.renderListing(ctx)
}

func (b *Browser) setQuery(fn func(catalog.Query) catalog.Query) {
	b.mu.Lock()
	b.query = fn(b.query)
	b.mu.Unlock()
}

func (b *Browser) printf(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.out, format, args...)
}

func (b *Browser) usage(u string) error {
	b.printf("usage: %s\n", u)
	return nil
}

func (b *Browser) intArg(args []string, i int, u string) (int, bool) {
	if len(args) <= i {
		b.usage(u)
		return 0, false
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		b.usage(u)
		return 0, false
	}
	return n, true
}

func (b *Browser) renderListing(ctx context.Context) {
	q := b.Query()
	page, err := b.cat.Products(ctx, q)
	if err != nil {
		b.printf("error: %v\n", err)
		obs.Logger.Debug("browse_listing_failed", "query", q.Encode(), "error", err)
		return
	}
	pages := catalog.TotalPages(page.Total, q.PageSize)

	var sb strings.Builder
	fmt.Fprintf(&sb, "products page %d/%d (%d total)", q.Page, max(pages, 1), page.Total)
	if enc := q.Encode(); enc != "" {
		fmt.Fprintf(&sb, " [%s]", enc)
	}
	sb.WriteString("\n")
	if len(page.Products) == 0 {
		sb.WriteString("  no products found\n")
	}
	for _, p := range page.Products {
		fmt.Fprintf(&sb, "  #%-4d %-32s %8s  stock %-4d rating %.2f\n", p.ID, p.Title, money(p.DiscountedPrice()), p.Stock, p.Rating)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.totalPages = pages
	io.WriteString(b.out, sb.String())
}

func (b *Browser) show(ctx context.Context, id int) {
	p, err := b.cat.Product(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		b.printf("product %d not found\n", id)
		return
	}
	if err != nil {
		b.printf("error: %v\n", err)
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d %s\n", p.ID, p.Title)
	fmt.Fprintf(&sb, "  brand %s, category %s\n", p.Brand, p.Category)
	fmt.Fprintf(&sb, "  price %s (%s, -%.2f%%)\n", money(p.DiscountedPrice()), money(p.Price), p.DiscountPercentage)
	fmt.Fprintf(&sb, "  stock %d, rating %.2f\n", p.Stock, p.Rating)
	if p.Description != "" {
		fmt.Fprintf(&sb, "  %s\n", p.Description)
	}
	if q, ok := b.ledger.Quantity(p.ID); ok {
		fmt.Fprintf(&sb, "  in cart: %d\n", q)
	}
	b.printf("%s", sb.String())
}

func (b *Browser) add(ctx context.Context, id int) {
	p, err := b.cat.FindProduct(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		b.printf("product %d not found\n", id)
		return
	}
	if err != nil {
		b.printf("error: %v\n", err)
		return
	}
	m := b.co.AddToCart(ctx, p)
	b.printf("added %s, cart has %d items (confirming)\n", p.Title, b.ledger.TotalCount())
	go func() {
		<-m.Done()
		if m.RolledBack() {
			b.printf("could not add %s: %v (cart has %d items)\n", p.Title, m.Err(), b.ledger.TotalCount())
			return
		}
		b.printf("confirmed %s\n", p.Title)
	}()
}

func (b *Browser) renderCart() {
	snap := b.ledger.Snapshot()
	var sb strings.Builder
	if len(snap.Items) == 0 {
		sb.WriteString("cart is empty\n")
	}
	for _, l := range snap.Items {
		fmt.Fprintf(&sb, "  #%-4d %-32s %3d x %8s = %9s\n", l.ID, l.Title, l.Quantity, money(l.DiscountedPrice()), money(cart.LinePrice(l)))
	}
	fmt.Fprintf(&sb, "items %d, total %s\n", snap.TotalCount, money(snap.TotalPrice))
	b.printf("%s", sb.String())
}

func (b *Browser) renderCategories(ctx context.Context) {
	cats, err := b.cat.Categories(ctx)
	if err != nil {
		b.printf("error: %v\n", err)
		return
	}
	var sb strings.Builder
	for _, c := range cats {
		fmt.Fprintf(&sb, "  %-20s %s\n", c.Slug, c.Name)
	}
	b.printf("%s", sb.String())
}

// money formats a price for display. Totals themselves stay unrounded.
func money(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}

