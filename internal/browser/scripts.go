package browser

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
)

// refAttr marks every element handed out by Query so later actions can find
// it again inside its own document.
const refAttr = "data-rpa-ref"

// describeFn snapshots an element into the shape of automation.Element.
const describeFn = `
const __rpaDescribe = (el) => {
  const view = el.ownerDocument.defaultView;
  const cs = view.getComputedStyle(el);
  const r = el.getBoundingClientRect();
  const attrs = {};
  for (const a of el.attributes) attrs[a.name] = a.value;
  return {
    ref: el.getAttribute('data-rpa-ref') || '',
    tag: el.tagName,
    id: el.id || '',
    name: el.getAttribute('name') || '',
    className: typeof el.className === 'string' ? el.className : '',
    type: el.getAttribute('type') || '',
    text: (el.innerText || el.textContent || '').trim(),
    value: ('value' in el && el.value != null) ? String(el.value) : '',
    placeholder: el.getAttribute('placeholder') || '',
    ariaLabel: el.getAttribute('aria-label') || '',
    visible: r.width > 0 && r.height > 0 && cs.visibility !== 'hidden' && cs.display !== 'none',
    enabled: !el.disabled && el.getAttribute('aria-disabled') !== 'true',
    readOnly: !!el.readOnly || el.hasAttribute('readonly'),
    backgroundColor: cs.backgroundColor || '',
    attrs: attrs,
  };
};
const __rpaMark = (el) => {
  if (!el.hasAttribute('data-rpa-ref')) {
    const w = window.top;
    w.__rpaSeq = (w.__rpaSeq || 0) + 1;
    el.setAttribute('data-rpa-ref', 'r' + w.__rpaSeq);
  }
  return el;
};
`

// Frame documents are reached through contentDocument, so only same-origin
// iframes can be scripted.
func rootExpr(scope automation.Scope) string {
	if scope.IsTop() {
		return "document"
	}
	return fmt.Sprintf("((document.querySelectorAll('iframe')[%d] || {}).contentDocument)", scope.Index())
}

func jsString(s string) string {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func refSelector(ref string) string {
	return fmt.Sprintf(`[%s="%s"]`, refAttr, ref)
}

func queryScript(scope automation.Scope, sel automation.Selector) string {
	return fmt.Sprintf(`(() => {
  const root = %s;
  if (!root) throw new Error('scope document unavailable');
  %s
  const css = %s, xpath = %s;
  let els = [];
  if (xpath) {
    const it = root.evaluate(xpath, root, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    for (let i = 0; i < it.snapshotLength; i++) {
      const n = it.snapshotItem(i);
      if (n.nodeType === 1) els.push(n);
    }
  } else {
    els = Array.from(root.querySelectorAll(css));
  }
  return els.map(el => __rpaDescribe(__rpaMark(el)));
})()`, rootExpr(scope), describeFn, jsString(sel.CSS), jsString(sel.XPath))
}

func queryWithinScript(parent automation.Element, css string) string {
	return fmt.Sprintf(`(() => {
  const root = %s;
  if (!root) throw new Error('scope document unavailable');
  %s
  const parent = root.querySelector(%s);
  if (!parent) throw new Error('element is detached');
  return Array.from(parent.querySelectorAll(%s)).map(el => __rpaDescribe(__rpaMark(el)));
})()`, rootExpr(parent.Scope), describeFn, jsString(refSelector(parent.Ref)), jsString(css))
}

// elementScript runs body with el bound to the element. body may return a value.
func elementScript(el automation.Element, body string) string {
	return fmt.Sprintf(`(() => {
  const root = %s;
  if (!root) throw new Error('scope document unavailable');
  %s
  const el = root.querySelector(%s);
  if (!el) throw new Error('element is detached');
  %s
})()`, rootExpr(el.Scope), describeFn, jsString(refSelector(el.Ref)), body)
}

const (
	inspectBody = `return __rpaDescribe(el);`
	scrollBody  = `el.scrollIntoView({block: 'center', inline: 'center'}); return true;`
	focusBody   = `el.focus(); return true;`
	clickBody   = `el.click(); return true;`
	clearBody   = `el.value = ''; el.dispatchEvent(new Event('input', {bubbles: true})); return true;`
)

func setValueBody(value string) string {
	return fmt.Sprintf(`
  const v = %s;
  const desc = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(el), 'value');
  if (desc && desc.set) { desc.set.call(el, v); } else { el.value = v; }
  for (const t of ['input', 'change', 'blur']) el.dispatchEvent(new Event(t, {bubbles: true}));
  return true;`, jsString(value))
}

func removeAttributeBody(name string) string {
	return fmt.Sprintf(`el.removeAttribute(%s); return true;`, jsString(name))
}

const (
	frameCountScript = `document.querySelectorAll('iframe').length`
	readyStateScript = `document.readyState === 'complete'`
)
