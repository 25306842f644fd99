package constants

// Billing provider event types we act on.
const (
	EventCheckoutCompleted         = "checkout.session.completed"
	EventSubscriptionDeleted       = "customer.subscription.deleted"
	EventRecurringPaymentSucceeded = "invoice.payment_succeeded"
)

// Checkout defaults.
const (
	DefaultCurrency = "usd"
	DefaultInterval = "monthly"
)

// StripeSignatureHeader carries the webhook signature.
const StripeSignatureHeader = "Stripe-Signature"
