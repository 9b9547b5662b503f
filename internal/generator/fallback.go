package generator

import "strings"

// Fallback selection is keyword-based over the raw message: greeting-like
// messages get the onboarding text, help-like messages the contact list,
// everything else the generic guidance. All three carry the emergency and
// support phone numbers.

var greetingWords = []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening"}

var helpWords = []string{"help", "support", "assistance"}

func fallbackResponse(message string) string {
	lower := strings.ToLower(message)

	for _, w := range greetingWords {
		if strings.Contains(lower, w) {
			return fallbackGreeting
		}
	}
	for _, w := range helpWords {
		if strings.Contains(lower, w) {
			return fallbackHelp
		}
	}
	return fallbackGeneric
}

const fallbackGreeting = `Hello! 👋 Welcome to Hello Friends!

I'm here to help you with questions about your rights as a migrant worker in Singapore.

You can ask me about:
- Payment and salary issues
- Work conditions and hours
- Medical care and health
- Accommodation problems
- Passport and document issues
- Changing employers
- And much more!

What would you like to know about your rights today?`

const fallbackHelp = `I'm here to help! 🤝

I can provide guidance on your rights as a migrant worker in Singapore. Here are some ways I can assist you:

**Common Issues I Can Help With:**
- Payment problems
- Work conditions
- Medical care access
- Accommodation issues
- Document problems
- Employment changes

**Important Contacts:**
- MOM Hotline: 6438 5122
- HOME: 6341 5535
- Police Emergency: 999
- Fire/Medical Emergency: 995

Please tell me what specific issue you're facing, and I'll do my best to help!`

const fallbackGeneric = `Thank you for your message!

I'm Hello Friends, your assistant for migrant worker rights in Singapore. I can help you with questions about:

- Your employment rights
- Payment and salary issues
- Work conditions
- Medical care
- Accommodation
- Document problems
- And more!

Please ask me a specific question about your rights or situation, and I'll provide helpful guidance.

**Important Contacts:**
- MOM Hotline: 6438 5122
- HOME: 6341 5535
- Police Emergency: 999
- Fire/Medical Emergency: 995`
