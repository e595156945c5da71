package recorder

// recorderScript is injected into the recorded page. It hooks user events,
// builds the multi-candidate locator list for each touched element and
// queues events for the poller to drain. Re-injection is a no-op.
const recorderScript = `(function() {
	if (window.__smarttestRecorder) { return; }
	window.__smarttestRecorder = { events: [] };

	function cssPath(el) {
		var path = [];
		while (el && el.nodeType === Node.ELEMENT_NODE && el.tagName.toLowerCase() !== 'html') {
			var seg = el.tagName.toLowerCase();
			var parent = el.parentNode;
			if (parent) {
				var same = Array.prototype.filter.call(parent.children, function(c) {
					return c.tagName === el.tagName;
				});
				if (same.length > 1) {
					seg += ':nth-of-type(' + (same.indexOf(el) + 1) + ')';
				}
			}
			path.unshift(seg);
			el = parent;
		}
		return path.join(' > ');
	}

	function xPath(el) {
		var path = [];
		while (el && el.nodeType === Node.ELEMENT_NODE) {
			var idx = 1, sib = el.previousElementSibling;
			while (sib) {
				if (sib.tagName === el.tagName) { idx++; }
				sib = sib.previousElementSibling;
			}
			path.unshift(el.tagName.toLowerCase() + '[' + idx + ']');
			el = el.parentElement;
		}
		return '/' + path.join('/');
	}

	function candidates(el) {
		var rect = el.getBoundingClientRect();
		var box = { x: rect.x, y: rect.y, width: rect.width, height: rect.height };
		var out = [];
		function add(strategy, selector) {
			out.push({ strategy: strategy, selector: selector, box: box });
		}
		var tag = el.tagName.toLowerCase();
		if (el.dataset && el.dataset.testid) { add('testid', "[data-testid='" + el.dataset.testid + "']"); }
		var aria = el.getAttribute('aria-label');
		if (aria) { add('aria', "[aria-label='" + aria + "']"); }
		if (el.id) { add('id', '#' + el.id); }
		if (el.name) { add('name', tag + "[name='" + el.name + "']"); }
		var text = (el.innerText || '').trim();
		if (text && text.length <= 40 && text.indexOf("'") < 0 && text.indexOf('"') < 0 && text.indexOf('\n') < 0) {
			add('text', '//' + tag + "[normalize-space()='" + text + "']");
		}
		add('css', cssPath(el));
		add('xpath', xPath(el));
		return out;
	}

	function push(type, el, value, key) {
		window.__smarttestRecorder.events.push({
			type: type,
			value: value || '',
			key: key || '',
			timestamp: Date.now(),
			locators: candidates(el)
		});
	}

	document.addEventListener('click', function(ev) {
		if (ev.target && ev.target.nodeType === Node.ELEMENT_NODE) { push('click', ev.target); }
	}, true);

	document.addEventListener('input', function(ev) {
		var el = ev.target;
		if (el && (el.tagName === 'INPUT' || el.tagName === 'TEXTAREA')) { push('type', el, el.value); }
	}, true);

	document.addEventListener('change', function(ev) {
		var el = ev.target;
		if (el && el.tagName === 'SELECT') { push('select', el, el.value); }
	}, true);

	document.addEventListener('submit', function(ev) {
		if (ev.target) { push('submit', ev.target); }
	}, true);

	document.addEventListener('keydown', function(ev) {
		if (ev.key === 'Enter' && ev.target) { push('press_enter', ev.target, '', ev.key); }
	}, true);
})()`

// drainScript hands back queued events and clears the queue.
const drainScript = `(function() {
	if (!window.__smarttestRecorder) { return []; }
	var out = window.__smarttestRecorder.events;
	window.__smarttestRecorder.events = [];
	return out;
})()`
